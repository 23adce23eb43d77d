// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package dialect

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/db/schema"
	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNew(t *testing.T) {
	t.Parallel()
	d, err := New(db.MySQL)
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())

	d, err = New(db.Postgres)
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	_, err = New(db.UnknownDB)
	require.Error(t, err)
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))
}

func TestStorageType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in       string
		mysql    string
		postgres string
	}{
		{in: "boolean", mysql: "tinyint(1)", postgres: "boolean"},
		{in: "BOOL", mysql: "tinyint(1)", postgres: "boolean"},
		{in: "tinyint(1)", mysql: "tinyint(1)", postgres: "tinyint(1)"},
		{in: "int(11)", mysql: "int", postgres: "int"},
		{in: "character varying(64)", mysql: "varchar(64)", postgres: "varchar(64)"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.mysql, (&MySQL{}).StorageType(tt.in))
			assert.Equal(t, tt.postgres, (&Postgres{}).StorageType(tt.in))
		})
	}
}

func TestMySQL_Introspect(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	conn, mock := db.TestMockDB(t)

	mock.ExpectQuery(mysqlColumns).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "column_type", "nullable", "column_default"}).
			AddRow("orders", "id", "int(11)", false, nil).
			AddRow("orders", "user_id", "int(11)", false, nil).
			AddRow("orders", "status", "varchar(32)", true, "new").
			AddRow("users", "id", "int", false, nil).
			AddRow("users", "createdAt", "timestamp", false, "CURRENT_TIMESTAMP"),
	)
	mock.ExpectQuery(mysqlPrimaryKeys).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name"}).
			AddRow("orders", "id").
			AddRow("users", "id"),
	)
	mock.ExpectQuery(mysqlIndexes).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "index_name", "column_name", "unique"}).
			AddRow("orders", "orders_user_status_idx", "user_id", false).
			AddRow("orders", "orders_user_status_idx", "status", false).
			AddRow("users", "users_id_uq", "id", true),
	)
	mock.ExpectQuery(mysqlForeignKeys).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "constraint_name", "column_name", "ref_table", "ref_column", "delete_rule"}).
			AddRow("orders", "orders_user_fk", "user_id", "users", "id", "CASCADE"),
	)

	s, err := (&MySQL{}).Introspect(context.Background(), conn)
	require.NoError(err)
	assert.Equal([]string{"orders", "users"}, s.TableNames())

	orders := s.Table("orders")
	assert.Equal([]*schema.Column{
		{Name: "id", Type: "int"},
		{Name: "user_id", Type: "int"},
		{Name: "status", Type: "varchar(32)", Nullable: true, Default: strPtr("'new'")},
	}, orders.Columns)
	assert.Equal([]string{"id"}, orders.PrimaryKey)
	assert.Equal([]*schema.Index{{Name: "orders_user_status_idx", Columns: []string{"user_id", "status"}}}, orders.Indexes)
	assert.Equal([]*schema.ForeignKey{{
		Name:       "orders_user_fk",
		Columns:    []string{"user_id"},
		RefTable:   "users",
		RefColumns: []string{"id"},
		OnDelete:   "CASCADE",
	}}, orders.ForeignKeys)

	users := s.Table("users")
	assert.Equal("CURRENT_TIMESTAMP", *users.Column("createdAt").Default)
	assert.Equal([]*schema.Index{{Name: "users_id_uq", Columns: []string{"id"}, Unique: true}}, users.Indexes)
}

func TestMySQL_IntrospectFails(t *testing.T) {
	t.Parallel()
	conn, mock := db.TestMockDB(t)
	mock.ExpectQuery(mysqlColumns).WillReturnError(&mysql.MySQLError{Number: 1142, Message: "SELECT command denied"})

	s, err := (&MySQL{}).Introspect(context.Background(), conn)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, errors.Match(errors.T(errors.IntrospectionFailed), err))
	assert.True(t, errors.Match(errors.T(errors.PermissionDenied), err))
	assert.True(t, errors.IsPermissionError(err))
}

func TestPostgres_Introspect(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	conn, mock := db.TestMockDB(t)

	mock.ExpectQuery(postgresColumns).WillReturnRows(
		sqlmock.NewRows([]string{"relname", "attname", "format_type", "nullable", "default"}).
			AddRow("clients", "id", "integer", false, "nextval('clients_id_seq'::regclass)").
			AddRow("clients", "name", "character varying(255)", false, nil).
			AddRow("clients", "deletedAt", "timestamp without time zone", true, nil),
	)
	mock.ExpectQuery(postgresPrimaryKeys).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name"}).AddRow("clients", "id"),
	)
	mock.ExpectQuery(postgresIndexes).WillReturnRows(
		sqlmock.NewRows([]string{"relname", "relname", "attname", "indisunique"}),
	)
	mock.ExpectQuery(postgresForeignKeys).WillReturnRows(
		sqlmock.NewRows([]string{"relname", "conname", "attname", "relname", "attname", "rule"}),
	)

	s, err := (&Postgres{}).Introspect(context.Background(), conn)
	require.NoError(err)
	clients := s.Table("clients")
	require.NotNil(clients)
	assert.Equal([]*schema.Column{
		{Name: "id", Type: "int", Default: strPtr("nextval('clients_id_seq'::regclass)")},
		{Name: "name", Type: "varchar(255)"},
		{Name: "deletedAt", Type: "timestamp", Nullable: true},
	}, clients.Columns)
	assert.Empty(clients.Indexes)
	assert.Empty(clients.ForeignKeys)
}

func TestMySQL_statements(t *testing.T) {
	t.Parallel()
	d := &MySQL{}
	orders := &schema.Table{
		Name: "orders",
		Columns: []*schema.Column{
			{Name: "id", Type: "int"},
			{Name: "note", Type: "varchar(255)", Nullable: true, Default: strPtr("'none'")},
		},
		PrimaryKey: []string{"id"},
	}
	fk := &schema.ForeignKey{Name: "orders_user_fk", Columns: []string{"user_id"}, RefTable: "users", RefColumns: []string{"id"}, OnDelete: "CASCADE"}
	idx := &schema.Index{Name: "orders_note_idx", Columns: []string{"note"}, Unique: true}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "create table", got: d.CreateTable(orders), want: "CREATE TABLE `orders` (\n  `id` int NOT NULL,\n  `note` varchar(255) DEFAULT 'none',\n  PRIMARY KEY (`id`)\n)"},
		{name: "drop table", got: d.DropTable("orders"), want: "DROP TABLE `orders`"},
		{name: "rename table", got: d.RenameTable("purchase_orders", "orders"), want: "RENAME TABLE `purchase_orders` TO `orders`"},
		{name: "add column", got: d.AddColumn("orders", orders.Columns[1]), want: "ALTER TABLE `orders` ADD COLUMN `note` varchar(255) DEFAULT 'none'"},
		{name: "drop column", got: d.DropColumn("orders", "note"), want: "ALTER TABLE `orders` DROP COLUMN `note`"},
		{name: "rename column", got: d.RenameColumn("orders", "state", "status"), want: "ALTER TABLE `orders` RENAME COLUMN `state` TO `status`"},
		{name: "alter column", got: d.AlterColumn("orders", nil, &schema.Column{Name: "id", Type: "bigint"}), want: "ALTER TABLE `orders` MODIFY COLUMN `id` bigint NOT NULL"},
		{name: "add index", got: d.AddIndex("orders", idx), want: "CREATE UNIQUE INDEX `orders_note_idx` ON `orders` (`note`)"},
		{name: "drop index", got: d.DropIndex("orders", idx), want: "DROP INDEX `orders_note_idx` ON `orders`"},
		{name: "add fk", got: d.AddForeignKey("orders", fk), want: "ALTER TABLE `orders` ADD CONSTRAINT `orders_user_fk` FOREIGN KEY (`user_id`) REFERENCES `users` (`id`) ON DELETE CASCADE"},
		{name: "drop fk", got: d.DropForeignKey("orders", fk), want: "ALTER TABLE `orders` DROP FOREIGN KEY `orders_user_fk`"},
		{name: "orphans", got: d.OrphanRows("orders", fk), want: "SELECT COUNT(*) FROM `orders` c LEFT JOIN `users` p ON c.`user_id` = p.`id` WHERE c.`user_id` IS NOT NULL AND p.`id` IS NULL"},
		{name: "quote", got: d.Quote("we`ird"), want: "`we``ird`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestPostgres_statements(t *testing.T) {
	t.Parallel()
	d := &Postgres{}
	from := &schema.Column{Name: "amount", Type: "int", Nullable: true}
	fk := &schema.ForeignKey{Name: "orders_user_fk", Columns: []string{"user_id"}, RefTable: "users", RefColumns: []string{"id"}, OnDelete: "NO ACTION"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "rename table", got: d.RenameTable("purchase_orders", "orders"), want: `ALTER TABLE "purchase_orders" RENAME TO "orders"`},
		{name: "alter type", got: d.AlterColumn("orders", from, &schema.Column{Name: "amount", Type: "bigint", Nullable: true}), want: `ALTER TABLE "orders" ALTER COLUMN "amount" TYPE bigint USING "amount"::bigint`},
		{name: "set not null", got: d.AlterColumn("orders", from, &schema.Column{Name: "amount", Type: "int"}), want: `ALTER TABLE "orders" ALTER COLUMN "amount" SET NOT NULL`},
		{name: "drop not null", got: d.AlterColumn("orders", &schema.Column{Name: "amount", Type: "int"}, from), want: `ALTER TABLE "orders" ALTER COLUMN "amount" DROP NOT NULL`},
		{name: "drop index", got: d.DropIndex("orders", &schema.Index{Name: "orders_idx"}), want: `DROP INDEX "orders_idx"`},
		{name: "add fk", got: d.AddForeignKey("orders", fk), want: `ALTER TABLE "orders" ADD CONSTRAINT "orders_user_fk" FOREIGN KEY ("user_id") REFERENCES "users" ("id")`},
		{name: "drop fk", got: d.DropForeignKey("orders", fk), want: `ALTER TABLE "orders" DROP CONSTRAINT "orders_user_fk"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}
