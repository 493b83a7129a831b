package main

//go:generate swag init -g cmd/predictd/main.go -o docs

// @title           bitpredict API
// @version         0.1.0
// @description     BTC/USD up/down guesses settled after a fixed delay.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
