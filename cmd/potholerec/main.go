// Command potholerec records road-defect video, a GPS track and annotated
// photos, and packages them for reporting.
package main

import "github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/cli"

func main() {
	cli.Execute()
}
