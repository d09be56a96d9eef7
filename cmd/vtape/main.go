// vtape encodes arbitrary files into lossless grayscale video containers
// and recovers them again, tolerating packet loss along the way.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
