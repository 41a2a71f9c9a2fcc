// Package ip manages the IPs of a project: discovery of ip.yml descriptors on
// disk, dependency resolution against local and installed IPs, and the
// marketplace round trips used to install missing dependencies and to publish
// new versions.
//
// A Database is owned by one command invocation. IPs are discovered from the
// local, global and installed locations, then resolved:
//
//	db := ip.NewDatabase(ip.Options{InstalledDir: dir, Remote: client})
//	if _, err := db.Discover(projectDir, ip.LocationLocal, true, false); err != nil {
//	    return err
//	}
//	if _, err := db.InstallMissing(ctx, nil); err != nil {
//	    return err
//	}
//
// Packages exchanged with the marketplace are gzip tarballs; commercial IPs
// carry one encrypted source tree per simulator.
package ip
