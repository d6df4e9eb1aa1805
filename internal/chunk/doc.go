// Package chunk provides bounded, independently positioned views over a shared
// file handle.
//
// Several goroutines may read disjoint byte ranges of one open file at the same
// time. Each Region keeps its own cursor, and every read takes the handle's
// mutex, seeks to the region's absolute offset, reads, and restores the
// handle's previous OS position before releasing the mutex. Other users of the
// handle therefore never observe a moved position.
//
// A Registry owns the lock table. Entries are reference counted by open
// regions and removed when the last region over a handle closes.
//
// Stream wraps a Region as one part of a multipart upload:
//
//	reg := chunk.NewRegistry()
//	s, err := chunk.NewStream(reg, f, 0, 8<<20, size, func(n int64) { sent.Add(n) })
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
// Stream implements io.ReadSeeker and io.ReaderAt, so the S3 upload manager
// can split it into concurrently read parts.
package chunk
