package server

//go:generate swag init -g internal/server/swagger.go -o internal/server/docs --outputTypes go

// @title CipherLens API
// @version 1.0.0
// @description Phishing detection over URLs, pages and email, with SHAP/LIME style explanations.
// @contact.name CipherLens Maintainers
// @BasePath /
