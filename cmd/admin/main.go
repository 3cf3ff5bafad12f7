package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"ctonjob/internal/auth"
	"ctonjob/internal/config"
	"ctonjob/internal/database"
	"ctonjob/internal/services"
	"ctonjob/internal/storage"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "ctonjob-admin",
		Usage: "运维命令：初始化管理员、写入行业、删除账号",
		Commands: []*cli.Command{
			{
				Name:  "create-admin",
				Usage: "创建管理员账号（首次登录强制改密）",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Usage: "管理员邮箱（必填）", Required: true},
					&cli.StringFlag{Name: "name", Usage: "显示名称", Value: "Administrateur"},
				},
				Action: createAdmin,
			},
			{
				Name:   "seed-sectors",
				Usage:  "写入默认行业列表（已存在的跳过）",
				Action: seedSectors,
			},
			{
				Name:  "delete-user",
				Usage: "级联删除用户及其存储文件",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "用户 ID（必填）", Required: true},
				},
				Action: deleteUser,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openDatabase() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.InitDatabase(cfg.Database, cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func createAdmin(cCtx *cli.Context) error {
	email := strings.ToLower(strings.TrimSpace(cCtx.String("email")))
	if email == "" {
		return errors.New("missing required flag: --email")
	}
	_, db, err := openDatabase()
	if err != nil {
		return err
	}

	var existing database.User
	switch err := db.Where("email = ?", email).First(&existing).Error; {
	case err == nil:
		return fmt.Errorf("user %q already exists", email)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return fmt.Errorf("query user: %w", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		return fmt.Errorf("generate password: %w", err)
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := database.User{Email: email, PasswordHash: hashed, MustChangePassword: true}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&database.Profile{
			ID:               user.ID,
			FullName:         strings.TrimSpace(cCtx.String("name")),
			Email:            email,
			Role:             database.RoleAdmin,
			Consentement:     true,
			MentionsLegales:  true,
			DateConsentement: &now,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	fmt.Printf("已创建管理员账号（首次登录需强制改密）：\n")
	fmt.Printf("邮箱: %s\n", email)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：请立即登录并修改密码（该密码仅显示一次）。\n")
	return nil
}

func seedSectors(*cli.Context) error {
	_, db, err := openDatabase()
	if err != nil {
		return err
	}
	created, err := database.SeedSectors(db, database.DefaultSectors)
	if err != nil {
		return err
	}
	fmt.Printf("行业写入完成：新增 %d 个\n", created)
	return nil
}

func deleteUser(cCtx *cli.Context) error {
	cfg, db, err := openDatabase()
	if err != nil {
		return err
	}
	store, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("init storage client: %w", err)
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	id := strings.TrimSpace(cCtx.String("id"))
	if err := services.NewAccounts(db, store, logger).DeleteUser(cCtx.Context, id); err != nil {
		return err
	}
	logger.Info("user deleted from cli", slog.String("user_id", id))
	return nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
