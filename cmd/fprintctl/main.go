package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	apiclient "go-fprint-manager/client"
	"go-fprint-manager/models"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
}

const defaultAPIBaseURL = "http://localhost:8080"

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "login":
		err = commandLogin(args)
	case "device":
		err = commandDevice(args)
	case "users":
		err = commandUsers(args)
	case "fingers":
		err = commandFingers(args)
	case "enroll":
		err = commandEnroll(args)
	case "wipe":
		err = commandWipe(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("user", "", "Admin username")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBaseURL+")")
	fs.Parse(args)

	if strings.TrimSpace(*username) == "" {
		return errors.New("--user is required")
	}

	secret := strings.TrimSpace(*password)
	if secret == "" {
		fmt.Print("Password: ")
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		secret = string(bytes)
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	} else if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}

	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	resp, err := client.Login(ctx, *username, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = resp.Token
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("login successful")
	return nil
}

func commandDevice(args []string) error {
	client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	info, err := client.DeviceInfo(ctx, token)
	if err != nil {
		return err
	}
	fmt.Printf("device: %s\n", info.Name)
	fmt.Printf("scan type: %s\n", info.ScanType)
	if info.NumEnrollStages > 0 {
		fmt.Printf("enroll stages: %d\n", info.NumEnrollStages)
	}
	return nil
}

func commandUsers(args []string) error {
	client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	users, err := client.ListUsers(ctx, token)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Println(u.Display())
	}
	return nil
}

func commandFingers(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: fprintctl fingers [list|delete|clear]")
	}
	sub := args[0]
	switch sub {
	case "list":
		return fingersList(args[1:])
	case "delete":
		return fingersDelete(args[1:])
	case "clear":
		return fingersClear(args[1:])
	default:
		return fmt.Errorf("unknown fingers command: %s", sub)
	}
}

func fingersList(args []string) error {
	fs := flag.NewFlagSet("fingers list", flag.ExitOnError)
	username := fs.String("user", "", "Account to list enrolled fingers for")
	fs.Parse(args)

	if strings.TrimSpace(*username) == "" {
		return errors.New("--user is required")
	}

	client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fingers, err := client.ListFingers(ctx, token, *username)
	if err != nil {
		return err
	}
	if len(fingers) == 0 {
		fmt.Println("no fingerprints enrolled")
		return nil
	}
	for _, f := range fingers {
		fmt.Printf("%s\t%s\n", f, f.DisplayName())
	}
	return nil
}

func fingersDelete(args []string) error {
	fs := flag.NewFlagSet("fingers delete", flag.ExitOnError)
	username := fs.String("user", "", "Account to delete the fingerprint from")
	finger := fs.String("finger", "", "Finger to delete (e.g. right-index-finger)")
	fs.Parse(args)

	if strings.TrimSpace(*username) == "" {
		return errors.New("--user is required")
	}
	if strings.TrimSpace(*finger) == "" {
		return errors.New("--finger is required")
	}

	client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.DeleteFinger(ctx, token, *username, *finger); err != nil {
		return err
	}
	fmt.Println("fingerprint deleted")
	return nil
}

func fingersClear(args []string) error {
	fs := flag.NewFlagSet("fingers clear", flag.ExitOnError)
	username := fs.String("user", "", "Account to delete all fingerprints from")
	fs.Parse(args)

	if strings.TrimSpace(*username) == "" {
		return errors.New("--user is required")
	}

	client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.DeleteAllFingers(ctx, token, *username); err != nil {
		return err
	}
	fmt.Println("all fingerprints deleted")
	return nil
}

func commandEnroll(args []string) error {
	fs := flag.NewFlagSet("enroll", flag.ExitOnError)
	username := fs.String("user", "", "Account to enroll the finger for")
	finger := fs.String("finger", "right-index-finger", "Finger to enroll")
	noFollow := fs.Bool("no-follow", false, "Start the enrollment and exit without streaming feedback")
	fs.Parse(args)

	if strings.TrimSpace(*username) == "" {
		return errors.New("--user is required")
	}
	parsed, err := models.ParseFinger(*finger)
	if err != nil {
		return err
	}

	client, token, err := authedClient()
	if err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	session, err := client.StartEnroll(startCtx, token, *username, parsed.String())
	cancel()
	if err != nil {
		return err
	}

	fmt.Printf("enrolling %s for %s\n", parsed.DisplayName(), *username)
	if *noFollow {
		fmt.Printf("session: %s nonce: %s\n", session.SessionID, session.Nonce)
		return nil
	}

	// Ctrl-C cancels the enrollment on the device as well.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = client.FollowEnrollment(ctx, token, session.SessionID, session.Nonce, func(event models.EnrollEvent) {
		printEnrollEvent(event, session.TotalStages)
	})
	if ctx.Err() != nil {
		cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cancelErr := client.CancelEnroll(cancelCtx, token, session.SessionID, session.Nonce); cancelErr != nil {
			fmt.Fprintf(os.Stderr, "could not cancel enrollment: %v\n", cancelErr)
		}
		return errors.New("enrollment interrupted")
	}
	return err
}

func printEnrollEvent(event models.EnrollEvent, totalStages int) {
	if event.Done {
		if event.Success {
			fmt.Printf("done: %s\n", event.Message)
		} else {
			fmt.Printf("failed: %s\n", event.Message)
		}
		return
	}
	if totalStages > 0 && event.Stage > 0 {
		fmt.Printf("[%d/%d] %s\n", event.Stage, totalStages, event.Message)
		return
	}
	fmt.Println(event.Message)
}

func commandWipe(args []string) error {
	fs := flag.NewFlagSet("wipe", flag.ExitOnError)
	confirmed := fs.Bool("yes", false, "Skip the confirmation prompt")
	fs.Parse(args)

	if !*confirmed {
		fmt.Print("This deletes the fingerprints of every user. Type 'wipe' to continue: ")
		var answer string
		fmt.Scanln(&answer)
		if strings.TrimSpace(answer) != "wipe" {
			return errors.New("aborted")
		}
	}

	client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := client.Wipe(ctx, token); err != nil {
		return err
	}
	fmt.Println("all fingerprints wiped")
	return nil
}

func authedClient() (*apiclient.Client, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, "", errors.New("please login first using 'fprintctl login'")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return nil, "", err
	}
	return client, token, nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBaseURL}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "fprintctl", "config.json"), nil
}

func printUsage() {
	fmt.Printf("fprintctl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	fprintctl login --user admin [--password secret] [--api http://localhost:8080]
	fprintctl device
	fprintctl users
	fprintctl fingers list --user <username>
	fprintctl fingers delete --user <username> --finger <finger>
	fprintctl fingers clear --user <username>
	fprintctl enroll --user <username> [--finger right-index-finger] [--no-follow]
	fprintctl wipe [--yes]
	fprintctl version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
