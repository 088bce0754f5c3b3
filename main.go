package main

import "Gin_postgres_redis_lending/cli"

func main() {
	cli.Execute()
}
