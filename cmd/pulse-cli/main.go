// pulse-cli is a command-line client for interacting with a pulsed node.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/pulse-net/pulse-chain/config"
	"github.com/pulse-net/pulse-chain/internal/device"
	"github.com/pulse-net/pulse-chain/internal/rpcclient"
	"github.com/pulse-net/pulse-chain/pkg/crypto"
	"github.com/pulse-net/pulse-chain/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	nodeURL := "http://127.0.0.1:8080"
	dataDir := config.DefaultDataDir()

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--node" && len(args) > 1:
			nodeURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--node="):
			nodeURL = args[0][len("--node="):]
			args = args[1:]
		case args[0] == "--data-dir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--data-dir="):
			dataDir = args[0][len("--data-dir="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg := config.Default()
	cfg.DataDir = dataDir
	client := rpcclient.New(nodeURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(client)
	case "block":
		cmdBlock(client, cmdArgs)
	case "blocks":
		cmdBlocks(client, cmdArgs)
	case "balance":
		cmdBalance(client, cmdArgs)
	case "accounts":
		cmdAccounts(client)
	case "device":
		cmdDevice(cmdArgs, cfg.KeystoreDir())
	case "pulse":
		cmdPulse(client, cmdArgs, cfg.KeystoreDir())
	case "send":
		cmdSend(client, cmdArgs, cfg.KeystoreDir())
	case "watch":
		cmdWatch(nodeURL)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: pulse-cli [global flags] <command> [flags]

Global flags:
  --node <url>        Node endpoint (default: http://127.0.0.1:8080)
  --data-dir <path>   Data directory (default: ~/.pulse)

Commands:
  status                          Show chain and network status
  block <index|latest>            Show block details
  blocks [--offset n] [--limit n] List blocks
  balance <pubkey>                Show an account balance
  accounts                        List all accounts
  device new --identity <name>    Create an identity and derive a device key
  device restore --identity <name>
                                  Restore an identity from a mnemonic
  device list [--identity <name>] List identities or derived devices
  pulse --identity <name> [--index n] [--hr n]
                                  Send one signed heartbeat
  send --identity <name> [--index n] --to <pubkey> --amount <x>
                                  Send a transaction (pulses first)
  watch                           Stream live node events
`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatalf("encode output: %v", err)
	}
	fmt.Println(string(data))
}

// ── Query commands ──────────────────────────────────────────────────────

func cmdStatus(client *rpcclient.Client) {
	info, err := client.ChainInfo()
	if err != nil {
		fatalf("%v", err)
	}
	stats, err := client.Stats()
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Height:          %d\n", info.Height)
	fmt.Printf("Latest hash:     %s\n", info.LatestHash)
	fmt.Printf("Heartbeat pool:  %d\n", info.HeartbeatPoolSize)
	fmt.Printf("Chain length:    %d\n", stats.ChainLength)
	fmt.Printf("Total minted:    %.4f PULSE\n", stats.TotalMinted)
	fmt.Printf("Active accounts: %d\n", stats.ActiveAccounts)
	fmt.Printf("Current TPS:     %.3f\n", stats.CurrentTPS)
	fmt.Printf("Avg block time:  %.2fs\n", stats.AvgBlockTime)
	fmt.Printf("Security (10b):  %.4f\n", stats.TotalSecurity)
}

func cmdBlock(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatalf("usage: pulse-cli block <index|latest>")
	}
	var (
		blk *types.PulseBlock
		err error
	)
	if args[0] == "latest" {
		blk, err = client.LatestBlock()
	} else {
		var index uint64
		index, err = strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			fatalf("invalid block index %q", args[0])
		}
		blk, err = client.Block(index)
	}
	if err != nil {
		fatalf("%v", err)
	}
	printJSON(blk)
}

func cmdBlocks(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("blocks", flag.ExitOnError)
	offset := fs.Int("offset", -1, "Start offset")
	limit := fs.Int("limit", -1, "Max blocks")
	fs.Parse(args)

	list, err := client.Blocks(*offset, *limit)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Total blocks: %d\n", list.Total)
	for _, blk := range list.Blocks {
		fmt.Printf("  #%-6d %s  n_live=%d txs=%d weight=%.4f\n",
			blk.Index, blk.BlockHash[:16]+"...", blk.NLive, len(blk.Transactions), blk.TotalWeight)
	}
}

func cmdBalance(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatalf("usage: pulse-cli balance <pubkey>")
	}
	bal, err := client.Balance(args[0])
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("%s: %.4f PULSE\n", bal.PubKey[:16]+"...", bal.Balance)
}

func cmdAccounts(client *rpcclient.Client) {
	accounts, err := client.Accounts()
	if err != nil {
		fatalf("%v", err)
	}
	if len(accounts) == 0 {
		fmt.Println("No accounts")
		return
	}
	for _, acct := range accounts {
		fmt.Printf("%s  balance=%.4f earned=%.4f blocks=%d\n",
			acct.PubKey[:16]+"...", acct.Balance, acct.TotalEarned, acct.BlocksParticipated)
	}
}

// ── Identity commands ───────────────────────────────────────────────────

func cmdDevice(args []string, keystoreDir string) {
	if len(args) < 1 {
		fatalf("usage: pulse-cli device <new|restore|list>")
	}
	ks, err := device.NewKeystore(keystoreDir)
	if err != nil {
		fatalf("%v", err)
	}

	sub := args[0]
	fs := flag.NewFlagSet("device "+sub, flag.ExitOnError)
	identity := fs.String("identity", "", "Identity name")
	name := fs.String("name", "", "Device display name")
	fs.Parse(args[1:])

	switch sub {
	case "new":
		if *identity == "" {
			fatalf("--identity is required")
		}
		mnemonic, err := device.GenerateMnemonic()
		if err != nil {
			fatalf("%v", err)
		}
		createIdentity(ks, *identity, mnemonic, *name)
		fmt.Println("\nRecovery mnemonic (write this down, it is shown once):")
		fmt.Printf("\n  %s\n", mnemonic)

	case "restore":
		if *identity == "" {
			fatalf("--identity is required")
		}
		fmt.Print("Mnemonic: ")
		var words []string
		for len(words) < 24 {
			var w string
			if _, err := fmt.Scan(&w); err != nil {
				fatalf("read mnemonic: %v", err)
			}
			words = append(words, strings.ToLower(strings.TrimSpace(w)))
		}
		mnemonic := strings.Join(words, " ")
		if !device.ValidateMnemonic(mnemonic) {
			fatalf("invalid mnemonic")
		}
		createIdentity(ks, *identity, mnemonic, *name)

	case "list":
		if *identity == "" {
			names, err := ks.List()
			if err != nil {
				fatalf("%v", err)
			}
			if len(names) == 0 {
				fmt.Println("No identities")
				return
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return
		}
		devices, err := ks.Devices(*identity)
		if err != nil {
			fatalf("%v", err)
		}
		for _, d := range devices {
			fmt.Printf("%-4d %-16s %s\n", d.Index, d.Name, d.PubKey[:16]+"...")
		}

	default:
		fatalf("unknown device subcommand %q", sub)
	}
}

// createIdentity encrypts the seed under a prompted passphrase and derives
// the first device key.
func createIdentity(ks *device.Keystore, identity, mnemonic, name string) {
	password := promptPassword("Passphrase for identity: ")
	confirm := promptPassword("Confirm passphrase: ")
	if string(password) != string(confirm) {
		fatalf("passphrases do not match")
	}

	seed, err := device.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatalf("%v", err)
	}
	if err := ks.Create(identity, seed, password, device.DefaultParams()); err != nil {
		fatalf("%v", err)
	}

	key := deriveDeviceKey(seed, 0)
	defer key.Zero()
	if name == "" {
		name = "device-0"
	}
	if err := ks.AddDevice(identity, device.DeviceEntry{
		Index:  0,
		Name:   name,
		PubKey: key.PublicKeyHex(),
	}); err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("Identity %q created.\n", identity)
	fmt.Printf("Device 0 pubkey: %s\n", key.PublicKeyHex())
}

func deriveDeviceKey(seed []byte, index uint32) *crypto.PrivateKey {
	master, err := device.NewMasterKey(seed)
	if err != nil {
		fatalf("%v", err)
	}
	key, err := master.DeriveDevice(0, index)
	if err != nil {
		fatalf("%v", err)
	}
	return key
}

func loadDeviceKey(keystoreDir, identity string, index uint32) *crypto.PrivateKey {
	ks, err := device.NewKeystore(keystoreDir)
	if err != nil {
		fatalf("%v", err)
	}
	password := promptPassword("Passphrase: ")
	seed, err := ks.LoadSeed(identity, password)
	if err != nil {
		fatalf("%v", err)
	}
	return deriveDeviceKey(seed, index)
}

func promptPassword(prompt string) []byte {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fatalf("read passphrase: %v", err)
	}
	return password
}

// ── Submission commands ─────────────────────────────────────────────────

func cmdPulse(client *rpcclient.Client, args []string, keystoreDir string) {
	fs := flag.NewFlagSet("pulse", flag.ExitOnError)
	identity := fs.String("identity", "", "Identity name")
	index := fs.Uint("index", 0, "Device index")
	hr := fs.Uint("hr", 72, "Heart rate (BPM)")
	temp := fs.Float64("temp", 36.6, "Body temperature (Celsius)")
	fs.Parse(args)

	if *identity == "" {
		fatalf("--identity is required")
	}
	key := loadDeviceKey(keystoreDir, *identity, uint32(*index))
	defer key.Zero()

	hb := buildHeartbeat(key, uint16(*hr), float32(*temp))
	if err := client.SubmitHeartbeat(hb); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Heartbeat accepted (HR=%d, weight=%.4f)\n", hb.HeartRate, hb.Weight())
}

func cmdSend(client *rpcclient.Client, args []string, keystoreDir string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	identity := fs.String("identity", "", "Identity name")
	index := fs.Uint("index", 0, "Device index")
	to := fs.String("to", "", "Recipient pubkey (hex)")
	amount := fs.Float64("amount", 0, "Amount of PULSE")
	fs.Parse(args)

	if *identity == "" || *to == "" || *amount <= 0 {
		fatalf("--identity, --to, and a positive --amount are required")
	}
	key := loadDeviceKey(keystoreDir, *identity, uint32(*index))
	defer key.Zero()

	// Liveness first: a transfer must reference a fresh accepted heartbeat.
	hb := buildHeartbeat(key, 72, 36.6)
	if err := client.SubmitHeartbeat(hb); err != nil {
		fatalf("heartbeat: %v", err)
	}

	tx := &types.Transaction{
		TxID:               uuid.NewString(),
		SenderPubKey:       key.PublicKeyHex(),
		RecipientPubKey:    *to,
		Amount:             *amount,
		Timestamp:          uint64(time.Now().UnixMilli()),
		HeartbeatSignature: hb.Signature,
	}
	sig, err := key.SignData(tx.SignableBytes())
	if err != nil {
		fatalf("sign transaction: %v", err)
	}
	tx.Signature = sig

	if err := client.SubmitTransaction(tx); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Transaction %s queued (%.4f PULSE)\n", tx.TxID, tx.Amount)
}

func buildHeartbeat(key *crypto.PrivateKey, hr uint16, temp float32) *types.Heartbeat {
	hb := &types.Heartbeat{
		Timestamp:    uint64(time.Now().UnixMilli()),
		HeartRate:    hr,
		Motion:       types.Motion{X: 0.05, Y: 0.02, Z: 0.01},
		Temperature:  temp,
		DevicePubKey: key.PublicKeyHex(),
	}
	sig, err := key.SignData(hb.SignableBytes())
	if err != nil {
		fatalf("sign heartbeat: %v", err)
	}
	hb.Signature = sig
	return hb
}

// ── Event stream ────────────────────────────────────────────────────────

func cmdWatch(nodeURL string) {
	wsURL := strings.Replace(nodeURL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fatalf("connect %s: %v", wsURL, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s\n", wsURL)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			fatalf("stream closed: %v", err)
		}
		var frame struct {
			Type  string            `json:"type"`
			Count uint64            `json:"count"`
			Block *types.PulseBlock `json:"block"`
		}
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "new_block":
			fmt.Printf("[block] #%d %s n_live=%d txs=%d\n",
				frame.Block.Index, frame.Block.BlockHash[:16]+"...",
				frame.Block.NLive, len(frame.Block.Transactions))
		case "heartbeat_count":
			fmt.Printf("[pool] %d pending heartbeats\n", frame.Count)
		case "stats":
			fmt.Println("[stats] updated")
		}
	}
}
