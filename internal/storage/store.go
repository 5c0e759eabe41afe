package storage

// Store is the pipeline's view of the database: bulk export in, batch write out.
type Store struct {
	*ItemRepo
	*ResultRepo
}

func NewStore(db *DB) *Store {
	return &Store{ItemRepo: NewItemRepo(db), ResultRepo: NewResultRepo(db)}
}
