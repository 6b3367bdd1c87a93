package dx

// Target API levels. SDK13 is the oldest level the tool supports; SDK26 is
// what files are built for unless a caller asks otherwise.
const (
	SDK13 = 13
	SDK26 = 26
)

// ToolVersion is the version of the dx toolchain this package emulates.
const ToolVersion = "1.16"
