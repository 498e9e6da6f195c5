package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/jdkroon/adslot-backend/internal/config"
	"github.com/jdkroon/adslot-backend/internal/database"
	"github.com/jdkroon/adslot-backend/internal/model"
	"github.com/jdkroon/adslot-backend/internal/repository"
	"github.com/jdkroon/adslot-backend/internal/utils"
)

// adminctl creates back-office accounts.  There is no self-service signup
// for operators; accounts are provisioned from the command line.
func main() {
	email := flag.String("email", "", "admin email address")
	password := flag.String("password", "", "initial password")
	flag.Parse()
	if *email == "" || *password == "" {
		log.Fatal("usage: adminctl -email <email> -password <password>")
	}

	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	hash, err := utils.HashPassword(*password, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	admin := &model.Admin{Email: *email, PasswordHash: hash}
	if err := repository.NewAdminRepo(db).Create(context.Background(), admin); err != nil {
		log.Fatalf("create admin: %v", err)
	}
	log.Printf("admin %s created (id=%d)", admin.Email, admin.ID)
}
