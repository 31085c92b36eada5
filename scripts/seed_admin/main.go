// Command seed_admin provisions the first admin account so the review
// dashboard can be reached on a fresh deployment.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/unidesk/english-proficiency-api/internal/models"
	"github.com/unidesk/english-proficiency-api/internal/repository"
	"github.com/unidesk/english-proficiency-api/pkg/config"
	"github.com/unidesk/english-proficiency-api/pkg/database"
)

func main() {
	email := flag.String("email", "", "admin email address")
	password := flag.String("password", "", "admin password")
	fullName := flag.String("name", "Administrator", "admin display name")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: seed_admin -email <email> -password <password> [-name <name>]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        *email,
		PasswordHash: string(hash),
		FullName:     *fullName,
		Role:         models.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	repo := repository.NewUserRepository(db)
	if err := repo.Create(ctx, user); err != nil {
		log.Fatalf("failed to create admin: %v", err)
	}

	fmt.Printf("admin account created: %s (%s)\n", user.Email, user.ID)
}
