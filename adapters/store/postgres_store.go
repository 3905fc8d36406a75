package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

// ContractsSchema creates the table used by PostgresContractRepository
const ContractsSchema = `create table if not exists contracts (
	id text primary key,
	post_id text not null,
	application_id text not null,
	job_title text not null default '',
	employer_address text not null,
	applicant_address text not null,
	salary numeric not null,
	start_date timestamptz not null,
	due_date timestamptz not null,
	contract_address text not null default '',
	escrow_address text not null default '',
	state text not null,
	employer_signed boolean not null default false,
	employer_signed_at timestamptz,
	applicant_signed boolean not null default false,
	applicant_signed_at timestamptz,
	pending jsonb,
	updated_at timestamptz not null
)`

var _ ports.ContractRepository = (*PostgresContractRepository)(nil)

// PostgresContractRepository stores contracts in PostgreSQL through database/sql.
// Open the *sql.DB with the pgx stdlib driver.
type PostgresContractRepository struct {
	db *sql.DB
}

func NewPostgresContractRepository(db *sql.DB) *PostgresContractRepository {
	return &PostgresContractRepository{db: db}
}

// Migrate creates the contracts table if needed
func (r *PostgresContractRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, ContractsSchema)
	return err
}

func (r *PostgresContractRepository) Get(ctx context.Context, id string) (*core.ContractEscrow, error) {
	row := r.db.QueryRowContext(ctx,
		`select id, post_id, application_id, job_title, employer_address, applicant_address, salary,
			start_date, due_date, contract_address, escrow_address, state,
			employer_signed, employer_signed_at, applicant_signed, applicant_signed_at, pending, updated_at
		from contracts where id=$1`, id,
	)

	var (
		c                     core.ContractEscrow
		state                 string
		employerAt, applicant sql.NullTime
		pending               []byte
	)
	err := row.Scan(&c.ID, &c.PostID, &c.ApplicationID, &c.JobTitle, &c.EmployerAddress, &c.ApplicantAddress, &c.Salary,
		&c.StartDate, &c.DueDate, &c.ContractAddress, &c.EscrowAddress, &state,
		&c.EmployerSigned, &employerAt, &c.ApplicantSigned, &applicant, &pending, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}

	c.State = core.ContractState(state)
	if employerAt.Valid {
		c.EmployerSignedAt = &employerAt.Time
	}
	if applicant.Valid {
		c.ApplicantSignedAt = &applicant.Time
	}
	if len(pending) > 0 {
		var d core.TransactionDescriptor
		if err := json.Unmarshal(pending, &d); err != nil {
			return nil, fmt.Errorf("failed to decode pending transaction: %w", err)
		}
		c.Pending = &d
	}
	return &c, nil
}

func (r *PostgresContractRepository) Save(ctx context.Context, c *core.ContractEscrow) error {
	var pending []byte
	if c.Pending != nil {
		var err error
		if pending, err = json.Marshal(c.Pending); err != nil {
			return fmt.Errorf("failed to encode pending transaction: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx,
		`insert into contracts(id, post_id, application_id, job_title, employer_address, applicant_address, salary,
			start_date, due_date, contract_address, escrow_address, state,
			employer_signed, employer_signed_at, applicant_signed, applicant_signed_at, pending, updated_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		on conflict (id) do update set
			contract_address=excluded.contract_address,
			escrow_address=excluded.escrow_address,
			state=excluded.state,
			employer_signed=excluded.employer_signed,
			employer_signed_at=excluded.employer_signed_at,
			applicant_signed=excluded.applicant_signed,
			applicant_signed_at=excluded.applicant_signed_at,
			pending=excluded.pending,
			updated_at=excluded.updated_at`,
		c.ID, c.PostID, c.ApplicationID, c.JobTitle, c.EmployerAddress, c.ApplicantAddress, c.Salary,
		c.StartDate, c.DueDate, c.ContractAddress, c.EscrowAddress, string(c.State),
		c.EmployerSigned, c.EmployerSignedAt, c.ApplicantSigned, c.ApplicantSignedAt, pending, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

func (r *PostgresContractRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `delete from contracts where id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	return nil
}
