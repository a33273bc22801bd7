// Command signlink recognizes fingerspelled letters from a webcam feed.
package main

func main() {
	Execute()
}
