package idgen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bulkupdate/internal/dberr"
	"bulkupdate/internal/ddl"
	"bulkupdate/internal/storage"
)

// SQLServerStore keeps counters in IdStore (or IdStoreInt64) and reserves
// blocks through the spGetNewId (or spGetNewIdInt64) stored procedure, which
// returns the first id of the block.
type SQLServerStore struct {
	db *sql.DB
	d  storage.Dialect
	w  Width
}

func NewSQLServerStore(db *sql.DB, d storage.Dialect, w Width) *SQLServerStore {
	return &SQLServerStore{db: db, d: d, w: w}
}

const procedureTemplate = `CREATE PROCEDURE {{Procedure}}
(
    @TableName nvarchar(100),
    @NumberOfItems int = 1
)
AS
BEGIN
    SET NOCOUNT ON;
    SET XACT_ABORT ON;

    DECLARE @LastId {{DataType}};

    BEGIN TRANSACTION;

    UPDATE {{Table}} WITH (UPDLOCK, HOLDLOCK)
    SET @LastId = LastId = LastId + @NumberOfItems
    WHERE TableName = @TableName;

    IF @@ROWCOUNT = 0
    BEGIN
        SET @LastId = @NumberOfItems;
        INSERT INTO {{Table}} (TableName, LastId) VALUES (@TableName, @LastId);
    END

    COMMIT TRANSACTION;

    SELECT @LastId - @NumberOfItems + 1;
END`

func (s *SQLServerStore) tableDef() ddl.TableDef {
	return ddl.TableDef{
		FQN: s.w.counterTable(),
		Columns: []ddl.ColumnDef{
			{Name: "TableName", SQLType: "NVARCHAR(100)", PrimaryKey: true},
			{Name: "LastId", SQLType: s.sqlType()},
		},
	}
}

func (s *SQLServerStore) sqlType() string {
	if s.w == Int64 {
		return "BIGINT"
	}
	return "INT"
}

// procedureSQL returns the guarded batch that creates the procedure when it
// is missing. CREATE PROCEDURE must be alone in its batch, hence EXEC.
func (s *SQLServerStore) procedureSQL() string {
	body := strings.NewReplacer(
		"{{Procedure}}", s.d.Quote(s.w.procedure()),
		"{{Table}}", s.d.Quote(s.w.counterTable()),
		"{{DataType}}", s.sqlType(),
	).Replace(procedureTemplate)
	return fmt.Sprintf("IF NOT EXISTS (SELECT * FROM sys.procedures WHERE name = '%s' AND type = 'P')\nEXEC('%s');",
		s.w.procedure(), strings.ReplaceAll(body, "'", "''"))
}

func (s *SQLServerStore) Init(ctx context.Context) error {
	create, err := s.d.CreateTableSQL(s.tableDef())
	if err != nil {
		return dberr.Configf("idgen init", "%v", err)
	}
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return dberr.Wrap("idgen init", create, err, s.d.Classify)
	}
	proc := s.procedureSQL()
	if _, err := s.db.ExecContext(ctx, proc); err != nil {
		return dberr.Wrap("idgen init", proc, err, s.d.Classify)
	}
	return nil
}

func (s *SQLServerStore) Reserve(ctx context.Context, table string, n int) (int64, error) {
	stmt := "EXEC " + s.d.Quote(s.w.procedure()) + " @TableName, @NumberOfItems"
	var first int64
	err := s.db.QueryRowContext(ctx, stmt,
		sql.Named("TableName", table),
		sql.Named("NumberOfItems", n),
	).Scan(&first)
	if err != nil {
		return 0, dberr.Wrap("idgen reserve", stmt, err, s.d.Classify)
	}
	return first, nil
}
