package detector

// Reference URLs used to sanity-check the tables after a change.
var (
	SamplePhishingURLs = []string{
		"http://paypa1.com/login",
		"http://secure-wellsfargo.com.banking.accountverify.net/login",
		"http://appleid.apple.com.signin-account.pw/",
		"http://192.168.1.1/paypal/login.php",
		"http://amazon.account-security.com/verify",
		"http://facebook.com.login.7fgk2m.xyz/auth",
	}

	SampleLegitimateURLs = []string{
		"https://www.paypal.com/signin",
		"https://www.amazon.com",
		"https://www.google.com",
		"https://www.microsoft.com",
		"https://www.apple.com/shop/account/signin",
		"https://www.wellsfargo.com",
	}
)

// CalibrationResult is the verdict for one labelled sample.
type CalibrationResult struct {
	URL      string   `json:"url"`
	Phishing bool     `json:"phishing"`
	Verdict  *Verdict `json:"verdict"`
}

// CalibrationReport summarises how the detector classifies labelled samples.
type CalibrationReport struct {
	PhishingDetectionRate  float64             `json:"phishingDetectionRate"`
	LegitimateAccuracyRate float64             `json:"legitimateAccuracyRate"`
	FalsePositiveRate      float64             `json:"falsePositiveRate"`
	Results                []CalibrationResult `json:"results"`
}

// Calibrate scores the phishing and legitimate URL sets by URL features only.
// Nil slices select the built-in samples.
func (d *Detector) Calibrate(phishing, legitimate []string) (*CalibrationReport, error) {
	if phishing == nil {
		phishing = SamplePhishingURLs
	}
	if legitimate == nil {
		legitimate = SampleLegitimateURLs
	}

	rep := &CalibrationReport{}
	var detected, accepted int
	for _, u := range phishing {
		a, err := d.Analyze(u, "")
		if err != nil {
			return nil, err
		}
		if a.Verdict.IsPhishing {
			detected++
		}
		rep.Results = append(rep.Results, CalibrationResult{URL: u, Phishing: true, Verdict: a.Verdict})
	}
	for _, u := range legitimate {
		a, err := d.Analyze(u, "")
		if err != nil {
			return nil, err
		}
		if !a.Verdict.IsPhishing {
			accepted++
		}
		rep.Results = append(rep.Results, CalibrationResult{URL: u, Phishing: false, Verdict: a.Verdict})
	}

	if len(phishing) > 0 {
		rep.PhishingDetectionRate = float64(detected) / float64(len(phishing))
	}
	if len(legitimate) > 0 {
		rep.LegitimateAccuracyRate = float64(accepted) / float64(len(legitimate))
		rep.FalsePositiveRate = 1 - rep.LegitimateAccuracyRate
	}
	return rep, nil
}
