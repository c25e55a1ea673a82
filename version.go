package bower

// Version is the library version. Release builds override it via ldflags.
var Version = "0.1.0-dev"
