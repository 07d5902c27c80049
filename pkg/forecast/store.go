package forecast

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/daxtrader54/mypredictify/internal/logger"
	_ "modernc.org/sqlite"
)

var db *sql.DB

// Persistable is implemented by every record the pipeline owns durably:
// team ratings, ensemble weights, adjustment history, league bias,
// period performance rows and the change log. Column mapping is driven
// by struct tags (column, dbtype, primary, index).
type Persistable interface {
	GetTableName() string
	GetPrimaryKey() map[string]any
	BeforeSave() error
}

// InitDatabase opens (or creates) the pipeline database at the given
// path. ":memory:" is accepted for tests.
func InitDatabase(path string) error {
	if db != nil {
		db.Close()
		db = nil
	}
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty
		// in-memory database.
		d.SetMaxOpenConns(1)
	}
	if err = d.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	db = d
	logger.Info("Database initialized", path)
	return createTables()
}

// CloseDatabase closes the database connection
func CloseDatabase() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// GetDB returns the database connection, opening the configured path on
// first use.
func GetDB() (*sql.DB, error) {
	if db == nil {
		if err := InitDatabase(Config.DbPath); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// createTables creates every table the pipeline owns
func createTables() error {
	for _, obj := range []Persistable{
		&TeamRating{},
		&EnsembleWeights{},
		&WeightAdjustment{},
		&LeagueBias{},
		&LeagueBiasSnapshot{},
		&PeriodPerformance{},
		&ChangeLogEntry{},
	} {
		if err := CreateTable(obj); err != nil {
			return fmt.Errorf("failed to create table %s: %w", obj.GetTableName(), err)
		}
	}
	return nil
}

// CreateTable creates a table for the given persistable object using
// struct tags
func CreateTable(obj Persistable) error {
	d, err := GetDB()
	if err != nil {
		return err
	}

	tableName := obj.GetTableName()
	createSQL := generateCreateTableSQL(obj, tableName)

	logger.Debug("Creating table with SQL", createSQL)

	if _, err = d.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	for _, query := range generateIndexSQL(obj, tableName) {
		if _, err := d.Exec(query); err != nil {
			logger.Warn("Failed to create index", err)
		}
	}

	return nil
}

// generateCreateTableSQL generates CREATE TABLE SQL from struct tags
func generateCreateTableSQL(obj any, tableName string) string {
	objType := reflect.TypeOf(obj)
	if objType.Kind() == reflect.Ptr {
		objType = objType.Elem()
	}

	var columns []string
	var primaryKeys []string

	for i := 0; i < objType.NumField(); i++ {
		field := objType.Field(i)

		if !field.IsExported() {
			continue
		}

		dbType := field.Tag.Get("dbtype")
		if dbType == "" {
			continue
		}

		columnName := field.Tag.Get("column")
		if columnName == "" {
			columnName = strings.ToLower(field.Name)
		}

		if field.Tag.Get("primary") == "true" {
			primaryKeys = append(primaryKeys, columnName)
		}

		columns = append(columns, fmt.Sprintf("%s %s", columnName, dbType))
	}

	if len(primaryKeys) > 0 {
		columns = append(columns, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(primaryKeys, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableName, strings.Join(columns, ", "))
}

// generateIndexSQL generates index creation SQL from struct tags
func generateIndexSQL(obj any, tableName string) []string {
	objType := reflect.TypeOf(obj)
	if objType.Kind() == reflect.Ptr {
		objType = objType.Elem()
	}

	var indexSQL []string

	for i := 0; i < objType.NumField(); i++ {
		field := objType.Field(i)

		if field.Tag.Get("index") == "" {
			continue
		}

		columnName := field.Tag.Get("column")
		if columnName == "" {
			columnName = strings.ToLower(field.Name)
		}

		indexName := fmt.Sprintf("idx_%s_%s", tableName, columnName)
		indexSQL = append(indexSQL, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", indexName, tableName, columnName))
	}

	return indexSQL
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Save persists the object to the database (INSERT or UPDATE)
func Save(obj Persistable) error {
	d, err := GetDB()
	if err != nil {
		return err
	}
	return saveWith(d, obj)
}

func saveWith(e execer, obj Persistable) error {
	if err := obj.BeforeSave(); err != nil {
		return fmt.Errorf("before save hook failed: %w", err)
	}

	exists, err := Exists(obj)
	if err != nil {
		return fmt.Errorf("failed to check existence: %w", err)
	}

	if exists {
		return update(e, obj)
	}
	return insert(e, obj)
}

// insert adds a new record to the database
func insert(e execer, obj Persistable) error {
	tableName := obj.GetTableName()
	columns, placeholders, values := getInsertData(obj)

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if _, err := e.Exec(query, values...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", tableName, err)
	}
	return nil
}

// update modifies an existing record in the database
func update(e execer, obj Persistable) error {
	tableName := obj.GetTableName()
	setPairs, values := getUpdateData(obj)

	whereClause, whereValues := buildWhereClause(obj.GetPrimaryKey())
	values = append(values, whereValues...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", tableName, strings.Join(setPairs, ", "), whereClause)

	if _, err := e.Exec(query, values...); err != nil {
		return fmt.Errorf("failed to update %s: %w", tableName, err)
	}
	return nil
}

// getInsertData extracts column names, placeholders, and values for INSERT
func getInsertData(obj any) ([]string, []string, []any) {
	objValue := reflect.ValueOf(obj)
	objType := reflect.TypeOf(obj)

	if objValue.Kind() == reflect.Ptr {
		objValue = objValue.Elem()
		objType = objType.Elem()
	}

	var columns []string
	var placeholders []string
	var values []any

	for i := 0; i < objType.NumField(); i++ {
		field := objType.Field(i)
		fieldValue := objValue.Field(i)

		if !field.IsExported() || field.Tag.Get("dbtype") == "" {
			continue
		}

		columnName := field.Tag.Get("column")
		if columnName == "" {
			columnName = strings.ToLower(field.Name)
		}

		columns = append(columns, columnName)
		placeholders = append(placeholders, "?")
		values = append(values, fieldValue.Interface())
	}

	return columns, placeholders, values
}

// getUpdateData extracts SET pairs and values for UPDATE
func getUpdateData(obj any) ([]string, []any) {
	objValue := reflect.ValueOf(obj)
	objType := reflect.TypeOf(obj)

	if objValue.Kind() == reflect.Ptr {
		objValue = objValue.Elem()
		objType = objType.Elem()
	}

	var setPairs []string
	var values []any

	for i := 0; i < objType.NumField(); i++ {
		field := objType.Field(i)
		fieldValue := objValue.Field(i)

		if !field.IsExported() || field.Tag.Get("dbtype") == "" {
			continue
		}

		// Primary key fields never change in an update
		if field.Tag.Get("primary") == "true" {
			continue
		}

		columnName := field.Tag.Get("column")
		if columnName == "" {
			columnName = strings.ToLower(field.Name)
		}

		setPairs = append(setPairs, fmt.Sprintf("%s = ?", columnName))
		values = append(values, fieldValue.Interface())
	}

	return setPairs, values
}

// Exists checks if the object exists in the database
func Exists(obj Persistable) (bool, error) {
	d, err := GetDB()
	if err != nil {
		return false, err
	}

	tableName := obj.GetTableName()
	whereClause, values := buildWhereClause(obj.GetPrimaryKey())

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", tableName, whereClause)

	var count int
	if err = d.QueryRow(query, values...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check existence in %s: %w", tableName, err)
	}

	return count > 0, nil
}

// FindByPrimaryKey retrieves an object by its primary key, scanning the
// result into obj.
func FindByPrimaryKey(obj Persistable, primaryKey map[string]any) error {
	d, err := GetDB()
	if err != nil {
		return err
	}

	tableName := obj.GetTableName()
	columns, destinations := getSelectData(obj)
	whereClause, values := buildWhereClause(primaryKey)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(columns, ", "), tableName, whereClause)

	row := d.QueryRow(query, values...)
	if err = row.Scan(destinations...); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("record not found in %s", tableName)
		}
		return fmt.Errorf("failed to scan row from %s: %w", tableName, err)
	}

	return nil
}

// FindAll retrieves all records of the given type
func FindAll(obj Persistable) ([]any, error) {
	return FindWhere(obj, "1 = 1")
}

// FindWhere executes a custom WHERE query and returns freshly allocated
// records of obj's type.
func FindWhere(obj Persistable, whereClause string, args ...any) ([]any, error) {
	d, err := GetDB()
	if err != nil {
		return nil, err
	}

	tableName := obj.GetTableName()
	columns, _ := getSelectData(obj)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(columns, ", "), tableName, whereClause)

	rows, err := d.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tableName, err)
	}
	defer rows.Close()

	var results []any
	objType := reflect.TypeOf(obj)
	if objType.Kind() == reflect.Ptr {
		objType = objType.Elem()
	}

	for rows.Next() {
		newObj := reflect.New(objType).Interface()
		_, destinations := getSelectData(newObj)

		if err := rows.Scan(destinations...); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", tableName, err)
		}

		results = append(results, newObj)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows from %s: %w", tableName, err)
	}

	return results, nil
}

// getSelectData extracts column names and scan destinations for SELECT
func getSelectData(obj any) ([]string, []any) {
	objValue := reflect.ValueOf(obj)
	objType := reflect.TypeOf(obj)

	if objValue.Kind() == reflect.Ptr {
		objValue = objValue.Elem()
		objType = objType.Elem()
	}

	var columns []string
	var destinations []any

	for i := 0; i < objType.NumField(); i++ {
		field := objType.Field(i)
		fieldValue := objValue.Field(i)

		if !field.IsExported() || field.Tag.Get("dbtype") == "" {
			continue
		}

		columnName := field.Tag.Get("column")
		if columnName == "" {
			columnName = strings.ToLower(field.Name)
		}

		columns = append(columns, columnName)
		destinations = append(destinations, fieldValue.Addr().Interface())
	}

	return columns, destinations
}

// BulkSave saves multiple objects in a single transaction
func BulkSave(objects []Persistable) error {
	d, err := GetDB()
	if err != nil {
		return err
	}

	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, obj := range objects {
		if err := saveWith(tx, obj); err != nil {
			return fmt.Errorf("failed to save object: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// buildWhereClause builds a WHERE clause from a primary key map
func buildWhereClause(primaryKey map[string]any) (string, []any) {
	var conditions []string
	var values []any

	for column, value := range primaryKey {
		conditions = append(conditions, fmt.Sprintf("%s = ?", column))
		values = append(values, value)
	}

	return strings.Join(conditions, " AND "), values
}
