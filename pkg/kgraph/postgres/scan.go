package postgres

import pgvector "github.com/pgvector/pgvector-go"

// pgvecSlice scans a nullable pgvector column into a []float32, leaving
// slice nil when the column is NULL (e.g. the LEFT JOIN against
// entity_vectors found no row).
type pgvecSlice struct {
	slice []float32
}

// Scan implements sql.Scanner-compatible scanning via pgx's driver value
// conversion: pgx delivers either nil or a [pgvector.Vector] depending on
// column nullability, so both are handled here.
func (p *pgvecSlice) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		p.slice = nil
		return nil
	case pgvector.Vector:
		p.slice = v.Slice()
		return nil
	default:
		var vec pgvector.Vector
		if err := vec.Scan(src); err != nil {
			return err
		}
		p.slice = vec.Slice()
		return nil
	}
}
