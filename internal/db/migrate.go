package db

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	// Blank imports register the postgres driver and file source for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fretefacil/mdfe-backend/internal/models"
)

// Models migrated in dependency order.
func allModels() []interface{} {
	return []interface{}{
		&models.Usuario{},
		&models.Emitente{}, &models.Veiculo{}, &models.Condutor{}, &models.Reboque{},
		&models.Contratante{}, &models.Seguradora{}, &models.Municipio{},
		&models.MDFe{}, &models.MDFeReboque{}, &models.MDFeCondutor{},
		&models.DocumentoFiscal{}, &models.UnidadeTransporte{}, &models.UnidadeCarga{},
		&models.LacreUnidadeTransporte{}, &models.LacreUnidadeCarga{},
		&models.ProdutoPerigoso{},
	}
}

func ConnectAndMigrate(dsn string) (*gorm.DB, error) {
	dsn = NormalizeDSN(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_DSN vazio, verifique a configuração do ambiente")
	}
	var db *gorm.DB
	var err error
	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "1" {
		logLevel = logger.Info
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}
	for i := 0; i < 10; i++ {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err == nil {
			break
		}
		fmt.Println("Retrying DB connection...", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after retries: %w", err)
	}

	if pingErr := db.Exec("SELECT 1").Error; pingErr != nil {
		return nil, fmt.Errorf("db ping failed: %w", pingErr)
	}

	masked := dsn
	if strings.Contains(masked, "password=") {
		re := regexp.MustCompile(`(password=)([^\s]+)`)
		masked = re.ReplaceAllString(masked, `${1}***`)
	}
	fmt.Println("[DB] Using DSN:", masked)

	// MIGRATIONS=1 runs sql migrations via golang-migrate; otherwise
	// AutoMigrate keeps dev environments converging.
	if v := strings.ToLower(os.Getenv("MIGRATIONS")); v == "1" || v == "true" || v == "yes" {
		if err := runSQLMigrations(dsn); err != nil {
			return nil, fmt.Errorf("sql migrations failed: %w", err)
		}
	} else {
		for _, m := range allModels() {
			if migErr := db.AutoMigrate(m); migErr != nil {
				return nil, fmt.Errorf("automigrate %T: %w", m, migErr)
			}
		}
	}

	for _, table := range []string{"usuarios", "emitentes", "mdfes"} {
		if !db.Migrator().HasTable(table) {
			return nil, errors.New("missing table after migration: " + table)
		}
	}
	if v := strings.ToLower(os.Getenv("DB_SEED")); v == "1" || v == "true" || v == "yes" {
		seed(db)
	}
	return db, nil
}

// AutoMigrateAll migrates every model on an already-open connection. Used by
// tests against sqlite.
func AutoMigrateAll(db *gorm.DB) error {
	for _, m := range allModels() {
		if err := db.AutoMigrate(m); err != nil {
			return err
		}
	}
	return nil
}

func seed(db *gorm.DB) {
	baseMunicipios := []models.Municipio{
		{CodigoIBGE: "3550308", Nome: "São Paulo", UF: "SP", Ativo: true},
		{CodigoIBGE: "3304557", Nome: "Rio de Janeiro", UF: "RJ", Ativo: true},
		{CodigoIBGE: "4106902", Nome: "Curitiba", UF: "PR", Ativo: true},
		{CodigoIBGE: "4314902", Nome: "Porto Alegre", UF: "RS", Ativo: true},
		{CodigoIBGE: "3106200", Nome: "Belo Horizonte", UF: "MG", Ativo: true},
	}
	for _, mu := range baseMunicipios {
		var existing models.Municipio
		if err := db.Where("codigo_ibge = ?", mu.CodigoIBGE).First(&existing).Error; err == gorm.ErrRecordNotFound {
			db.Create(&mu)
		}
	}
	var admin models.Usuario
	if err := db.Where("login = ?", "admin").First(&admin).Error; err == gorm.ErrRecordNotFound {
		hash, hashErr := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
		if hashErr == nil {
			db.Create(&models.Usuario{Nome: "Administrador", Login: "admin", PasswordHash: string(hash), Perfil: "admin", Ativo: true})
		}
	}
}

// runSQLMigrations executes migrations in ./migrations using golang-migrate file source.
func runSQLMigrations(dsn string) error {
	m, err := migrate.New("file://migrations", dsn)
	if err != nil {
		return err
	}
	if err = m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
