package main

import "supportbot/internal/app"

func main() {
	app.Main()
}
