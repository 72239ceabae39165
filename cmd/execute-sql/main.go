package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/lib/pq"

	"github.com/londonaicentre/PhenoLab-sub001/internal/config"
)

// Operator utility: run a single statement or query against the warehouse.
// Queries print tab-separated rows; statements print the affected row count.
func main() {
	query := flag.String("query", "", "SQL to execute")
	file := flag.String("file", "", "read SQL from a file instead")
	flag.Parse()

	sqlText := *query
	if *file != "" {
		raw, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("Failed to read SQL file: %v", err)
		}
		sqlText = string(raw)
	}
	if strings.TrimSpace(sqlText) == "" {
		log.Fatal("Provide SQL via -query or -file")
	}

	cfg := config.Load()
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("Cannot open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}

	if isQuery(sqlText) {
		if err := runQuery(db, sqlText); err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		return
	}

	result, err := db.Exec(sqlText)
	if err != nil {
		log.Fatalf("Statement failed: %v", err)
	}
	if affected, err := result.RowsAffected(); err == nil {
		fmt.Printf("%d rows affected\n", affected)
	} else {
		fmt.Println("OK")
	}
}

func isQuery(sqlText string) bool {
	head := strings.ToUpper(strings.TrimSpace(sqlText))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH") ||
		strings.HasPrefix(head, "SHOW") || strings.HasPrefix(head, "EXPLAIN")
}

func runQuery(db *sql.DB, sqlText string) error {
	rows, err := db.Query(sqlText)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(cols, "\t"))

	values := make([]sql.NullString, len(cols))
	scan := make([]any, len(cols))
	for i := range values {
		scan[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return err
		}
		fields := make([]string, len(values))
		for i, v := range values {
			if v.Valid {
				fields[i] = v.String
			} else {
				fields[i] = "NULL"
			}
		}
		fmt.Println(strings.Join(fields, "\t"))
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	fmt.Printf("(%d rows)\n", count)
	return nil
}
