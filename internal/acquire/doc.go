// Package acquire downloads and unpacks the server binary.
//
// Release archives are not always published with the suffix a URL template
// expects, so after the primary URL fails the acquirer strips the archive
// suffix and tries .zip, .tar.gz, .tgz and .tar in that order:
//
//	acq := acquire.New(nil)
//	url := acquire.ResolveURL(template, "2.10.2", acquire.DefaultSystem())
//	res, err := acq.EnsureBinary(ctx, url, "/tmp/nats/nats-server-v2.10.2-linux-amd64")
//
// An existing binary is never downloaded again.
package acquire
