// Package archive unpacks downloaded scene archives (gzip-compressed tar) into
// a scene's working area, refusing any member that would land outside the
// target directory.
package archive
