package build

// Version is set at link time: -ldflags "-X github.com/integrail/uismoke/internal/build.Version=v1.2.3".
var Version = "dev"
