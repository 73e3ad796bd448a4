package main

import "github.com/transport-university/chatbot/backend/internal/cli"

func main() {
	cli.Execute()
}
