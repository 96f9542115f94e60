// Command useradd provisions a staff account directly in the database. It
// exists for bootstrapping a deployment before any organization admin can
// sign in.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"vetcare.app/internal/auth"
	"vetcare.app/internal/ids"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	var (
		dsn      = flag.String("dsn", os.Getenv("VETCARE_PG_DSN"), "PostgreSQL DSN")
		orgID    = flag.String("org", "", "Organization id")
		email    = flag.String("email", "", "Account email")
		password = flag.String("password", "", "Initial password")
		roleName = flag.String("role", string(auth.RoleReceptionist), "Role")
		first    = flag.String("first-name", "", "First name")
		last     = flag.String("last-name", "", "Last name")
		clinics  = flag.String("clinics", "", "Comma-separated clinic ids to grant")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or VETCARE_PG_DSN")
	}
	if *orgID == "" || *email == "" || *password == "" {
		log.Fatal("usage: useradd -org <id> -email <addr> -password <pw> [-role r] [-clinics a,b]")
	}

	role, err := auth.ParseRole(*roleName)
	if err != nil {
		log.Fatalf("invalid role: %v", err)
	}
	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	userID := ids.New()
	_, err = tx.ExecContext(ctx, `
		insert into users (id, organization_id, email, password_hash, first_name, last_name, role, force_password_change)
		values ($1, $2, lower($3), $4, $5, $6, $7, true)`,
		userID, *orgID, *email, hash, *first, *last, string(role),
	)
	if err != nil {
		log.Fatalf("insert user: %v", err)
	}

	for _, clinicID := range strings.Split(*clinics, ",") {
		clinicID = strings.TrimSpace(clinicID)
		if clinicID == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`insert into user_clinic_access (user_id, clinic_id) values ($1, $2)`,
			userID, clinicID,
		); err != nil {
			log.Fatalf("grant clinic %s: %v", clinicID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("commit: %v", err)
	}
	fmt.Println(userID)
}
