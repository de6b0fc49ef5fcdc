package domain

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Client and Staff rows are owned by the account service. The scheduling
// engine only reads the columns it needs for enrichment.

type Client struct {
	bun.BaseModel `bun:"table:clients,alias:c"`

	ID    uuid.UUID `bun:"id,pk,type:uuid"`
	Name  string    `bun:"name,notnull"`
	Email string    `bun:"email"`
}

type Staff struct {
	bun.BaseModel `bun:"table:staff,alias:s"`

	ID    uuid.UUID `bun:"id,pk,type:uuid"`
	Name  string    `bun:"name,notnull"`
	Role  string    `bun:"role,notnull"`
	Email string    `bun:"email"`
}
