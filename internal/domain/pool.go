package domain

import "time"

type PoolKind string

const (
	PoolKindRoom      PoolKind = "ROOM"
	PoolKindBookTitle PoolKind = "BOOK_TITLE"
	PoolKindExamSeat  PoolKind = "EXAM_SEAT"
)

// Pool is a finite countable resource: a hostel room, the copy count of a
// cataloged book title, or the seat capacity of a scheduled exam.
type Pool struct {
	ID             int64      `json:"id"`
	Kind           PoolKind   `json:"kind"`
	Label          string     `json:"label"` // room number, book title, exam code
	TotalCapacity  int32      `json:"total_capacity"`
	ReservedCount  int32      `json:"reserved_count"`
	AcademicYear   string     `json:"academic_year,omitempty"` // rooms: 'YYYY-YYYY'
	ISBN           string     `json:"isbn,omitempty"`          // book titles
	WindowOpensAt  *time.Time `json:"window_opens_at,omitempty"`
	WindowClosesAt *time.Time `json:"window_closes_at,omitempty"`
	Archived       bool       `json:"archived"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Available reports remaining capacity. ReservedCount is only ever mutated
// under a row lock, so a value read inside a transaction is authoritative.
func (p *Pool) Available() int32 {
	return p.TotalCapacity - p.ReservedCount
}
