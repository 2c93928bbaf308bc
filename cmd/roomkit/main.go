// Package main is the roomkit command line.
package main

func main() {
	Execute()
}
