package version

// Version is the release tag, set at build time with
//
//	-ldflags "-X github.com/jake-scott/dahua-bridge/version.Version=v1.2.3"
var Version string = "dev"
