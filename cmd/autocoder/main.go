// Command autocoder turns natural-language specifications into tested code.
package main

func main() {
	Execute()
}
