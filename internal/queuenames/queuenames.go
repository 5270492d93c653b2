package queuenames

const (
	// LibrarySync refreshes video attributes. The payload is "all" or a
	// comma separated list of YYYY-MM partitions, optionally followed by
	// "?mirror=false" to skip rebuilding the mirror afterwards.
	LibrarySync = "library_sync"
	// LibraryMirror reloads the music root into the mirror database.
	LibraryMirror = "library_mirror"
)

var Priority = []string{
	LibraryMirror,
	LibrarySync,
}
