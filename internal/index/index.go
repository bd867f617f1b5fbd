package index

// ShardIndex defines the interface for shard indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type ShardIndex interface {
	UpsertShard(s ShardRow, body string, links []string, tasks []TaskRow) error
	DeleteShard(path string) error
	GetChecksum(path string) (string, error)
	GetShard(path string) (*ShardRow, error)
	ListShards(limit, offset int, tag string) ([]ShardRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	Tasks(f TaskFilter) ([]TaskRow, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies ShardIndex at compile time.
var _ ShardIndex = (*DB)(nil)
