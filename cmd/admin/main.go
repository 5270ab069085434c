// Command admin runs maintenance tasks against the billing database.
package main

import _ "time/tzdata"

func main() {
	Execute()
}
