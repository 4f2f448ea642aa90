package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/notarydesk/authcore/internal/security/password"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		handleAuth(args)
	case "admin":
		handleAdmin(args)
	case "hash":
		hashPassword(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: authcore auth <register|login|logout|who>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "register":
		registerUser(args[1:])
	case "login":
		loginUser(args[1:])
	case "logout":
		logoutUser()
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", subCmd)
	}
}

func handleAdmin(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: authcore admin <users|deactivate>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "users":
		listUsers(args[1:])
	case "deactivate":
		deactivateUser(args[1:])
	default:
		fmt.Printf("unknown admin command: %s\n", subCmd)
	}
}

// Auth commands
func registerUser(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	username := fs.String("username", "", "username")
	email := fs.String("email", "", "user email")
	role := fs.String("role", "user", "role (user, partner, seller)")
	business := fs.String("business", "", "business name (optional)")

	fs.Parse(args)

	if *username == "" || *email == "" {
		fmt.Println("Error: username and email are required")
		fs.PrintDefaults()
		return
	}
	secret, err := readPassword("Password: ")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	payload := map[string]string{
		"username": *username,
		"password": secret,
		"email":    *email,
		"role":     *role,
	}
	if *business != "" {
		payload["businessName"] = *business
	}

	resp, err := doJSON(http.MethodPost, "/auth/register", payload, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode == http.StatusCreated {
		user, _ := result["user"].(map[string]interface{})
		fmt.Printf("✓ User registered: %s (id %v)\n", *username, user["id"])
		if token, ok := result["token"].(string); ok {
			saveToken(token)
		}
	} else {
		fmt.Printf("✗ Registration failed: %v\n", result["error"])
	}
}

func loginUser(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "username")

	fs.Parse(args)

	if *username == "" {
		fmt.Println("Error: username is required")
		fs.PrintDefaults()
		return
	}
	secret, err := readPassword("Password: ")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	resp, err := doJSON(http.MethodPost, "/auth/login", map[string]string{"username": *username, "password": secret}, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("✗ Login failed: %v\n", result["error"])
		return
	}
	token, ok := result["token"].(string)
	if !ok {
		fmt.Println("✗ Login failed: no token in response")
		return
	}
	if err := saveToken(token); err != nil {
		fmt.Printf("Error saving token: %v\n", err)
		return
	}
	fmt.Printf("✓ Logged in as: %s\n", *username)
}

func logoutUser() {
	os.Remove(tokenFile())
	fmt.Println("✓ Logged out")
}

func whoAmI() {
	if loadToken() == "" {
		fmt.Println("Not logged in")
		return
	}

	resp, err := doJSON(http.MethodGet, "/auth/me", nil, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var user map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&user)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("✗ Session rejected: %v\n", user["error"])
		return
	}
	fmt.Printf("✓ %v (id %v, role %v)\n", user["username"], user["id"], user["role"])
}

// Admin commands
func listUsers(args []string) {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	role := fs.String("role", "user", "role to list")

	fs.Parse(args)

	resp, err := doJSON(http.MethodGet, "/admin/users?role="+*role, nil, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&result)
		fmt.Printf("✗ Listing failed: %v\n", result["error"])
		return
	}

	var result struct {
		Users []map[string]interface{} `json:"users"`
		Count int                      `json:"count"`
	}
	json.NewDecoder(resp.Body).Decode(&result)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tACTIVE\tCREATED")
	for _, u := range result.Users {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", u["id"], u["username"], u["email"], u["active"], u["createdAt"])
	}
	w.Flush()
	fmt.Printf("%d %s account(s)\n", result.Count, *role)
}

func deactivateUser(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: authcore admin deactivate <user-id>")
		return
	}

	resp, err := doJSON(http.MethodPost, "/admin/users/"+args[0]+"/deactivate", nil, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		fmt.Printf("✓ User %s deactivated\n", args[0])
		return
	}
	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	fmt.Printf("✗ Deactivation failed: %v\n", result["error"])
}

// hashPassword prints a digest for seeding bootstrap files or fixing rows by hand.
func hashPassword(args []string) {
	fs := flag.NewFlagSet("hash", flag.ExitOnError)
	fs.Parse(args)

	secret, err := readPassword("Password: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(password.NewHasher(password.DefaultParams()).Hash(secret))
}

// Helper functions
func getAPIURL() string {
	if url := os.Getenv("AUTHCORE_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api"
}

func doJSON(method, path string, payload any, authenticated bool) (*http.Response, error) {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, getAPIURL()+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		addAuthHeader(req)
	}
	return http.DefaultClient.Do(req)
}

// readPassword takes the secret from AUTHCORE_PASSWORD or one line of stdin,
// so it never appears in shell history or process listings.
func readPassword(prompt string) (string, error) {
	if v := os.Getenv("AUTHCORE_PASSWORD"); v != "" {
		return v, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("password is required")
	}
	return line, nil
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".authcore", "token")
}

func saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(tokenFile()), 0700); err != nil {
		return err
	}
	return os.WriteFile(tokenFile(), []byte(token), 0600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return strings.TrimSpace(string(data))
}

func addAuthHeader(req *http.Request) {
	token := loadToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`authcore CLI

Usage:
  authcore <command> [options]

Commands:
  auth       Session commands (register, login, logout, who)
  admin      Account administration (users, deactivate) - admin access required
  hash       Print a password digest read from stdin
  help       Show this help message

Environment Variables:
  AUTHCORE_API        API endpoint (default: http://localhost:8080/api)
  AUTHCORE_PASSWORD   Password for login, register and hash (otherwise read from stdin)

Examples:
  authcore auth register -username alice -email alice@example.com
  authcore auth login -username alice
  authcore admin users -role seller
  echo 's3cret-pass' | authcore hash
`)
}
