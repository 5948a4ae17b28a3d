// Package main は DASHBOARD_PASSWORD_HASH に設定する bcrypt ハッシュを生成するツールです。
//
//	echo -n 'correct-horse' | go run ./cmd/hashpw
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	password := flag.String("password", "", "password to hash (read from stdin when empty)")
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	hash, err := run(*password, *cost, os.Stdin)
	if err != nil {
		log.Fatalf("hashpw: %v", err)
	}
	fmt.Println(hash)
}

func run(password string, cost int, stdin io.Reader) (string, error) {
	if password == "" {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", fmt.Errorf("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
