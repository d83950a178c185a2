package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/matheus3301/roombook/internal/api"
	"github.com/matheus3301/roombook/internal/client"
	"github.com/matheus3301/roombook/internal/config"
	"github.com/matheus3301/roombook/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	timeoutFlag := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Usage = printUsage
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fatalf("%v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	socketPath := profile.SocketPath(profileName)
	c, err := client.New(socketPath)
	if err != nil {
		fatalf("cannot connect to daemon for profile %q: %v", profileName, err)
	}
	defer func() { _ = c.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if args[0] != "watch" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeoutFlag)
		defer cancel()
	}

	cl := &cli{client: c, json: *jsonFlag, cfg: loadConfig()}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "status":
		cl.status(ctx)
	case "sync":
		cl.sync(ctx, rest)
	case "pending":
		cl.pending(ctx)
	case "quarantined":
		cl.quarantined(ctx)
	case "requeue":
		cl.requeue(ctx, rest)
	case "watch":
		cl.watch(ctx, rest)
	case "rooms":
		cl.rooms(ctx, rest)
	case "bookings":
		cl.bookings(ctx, rest)
	case "book", "waitlist", "conflicts", "suggest", "override":
		cl.booking(ctx, cmd, rest)
	case "cancel":
		cl.cancel(ctx, rest)
	case "qr":
		cl.qr(ctx, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: roombookctl [--profile <name>] [--json] <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                    Show daemon state and queue depth")
	fmt.Fprintln(os.Stderr, "  sync [--skip-pull]        Replay pending operations now")
	fmt.Fprintln(os.Stderr, "  pending                   List operations awaiting replay")
	fmt.Fprintln(os.Stderr, "  quarantined               List operations the remote rejected")
	fmt.Fprintln(os.Stderr, "  requeue <id>... | --all   Return quarantined operations to the queue")
	fmt.Fprintln(os.Stderr, "  watch [prefix...]         Stream daemon events")
	fmt.Fprintln(os.Stderr, "  rooms [--active]          List cached rooms")
	fmt.Fprintln(os.Stderr, "  bookings [flags]          List cached bookings")
	fmt.Fprintln(os.Stderr, "  book [flags]              Book a room")
	fmt.Fprintln(os.Stderr, "  waitlist [flags]          Join the waitlist for a room")
	fmt.Fprintln(os.Stderr, "  conflicts [flags]         Show bookings that overlap a request")
	fmt.Fprintln(os.Stderr, "  suggest [flags]           Suggest alternatives for a request")
	fmt.Fprintln(os.Stderr, "  override [flags]          Book by displacing lower-priority bookings")
	fmt.Fprintln(os.Stderr, "  cancel <booking-id>       Cancel a booking")
	fmt.Fprintln(os.Stderr, "  qr <booking-id> [--png f] Show the check-in QR code")
}

type cli struct {
	client *client.Client
	json   bool
	cfg    *config.Config
}

func (c *cli) status(ctx context.Context) {
	resp, err := c.client.Sync.GetStatus(ctx, &api.GetStatusRequest{})
	check(err)
	if c.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("Profile:     %s\n", resp.Profile)
	fmt.Printf("State:       %s\n", resp.State)
	fmt.Printf("Online:      %v\n", resp.Online)
	fmt.Printf("Uptime:      %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
	fmt.Printf("Pending:     %d\n", resp.Pending)
	fmt.Printf("Quarantined: %d\n", resp.Quarantined)
}

func (c *cli) sync(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	skipPull := fs.Bool("skip-pull", false, "do not pull remote changes after replay")
	_ = fs.Parse(args)

	resp, err := c.client.Sync.Sync(ctx, &api.SyncRequest{SkipPull: *skipPull})
	check(err)
	if c.json {
		outputJSON(resp)
		return
	}
	r := resp.Result
	fmt.Printf("Processed %d, failed %d, skipped %d, quarantined %d in %s\n",
		r.Processed, r.Failed, r.Skipped, r.Quarantined, r.Duration.Round(time.Millisecond))
	if !*skipPull {
		fmt.Printf("Pulled %d room(s), %d booking(s)\n", resp.Pull.Rooms, resp.Pull.Bookings)
	}
}

func (c *cli) pending(ctx context.Context) {
	resp, err := c.client.Sync.ListPending(ctx, &api.ListPendingRequest{})
	check(err)
	c.printOperations(resp)
}

func (c *cli) quarantined(ctx context.Context) {
	resp, err := c.client.Sync.ListQuarantined(ctx, &api.ListQuarantinedRequest{})
	check(err)
	c.printOperations(resp)
}

func (c *cli) printOperations(resp *api.ListOperationsResponse) {
	if c.json {
		outputJSON(resp)
		return
	}
	if len(resp.Operations) == 0 {
		fmt.Println("No operations.")
		return
	}
	for _, op := range resp.Operations {
		fmt.Printf("%-6d %-6s %-10s %-36s attempts=%d %s\n",
			op.ID, op.Kind, op.Table, op.EntityID, op.Attempts, op.LastError)
	}
}

func (c *cli) requeue(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("requeue", flag.ExitOnError)
	all := fs.Bool("all", false, "requeue every quarantined operation")
	_ = fs.Parse(args)

	req := &api.RequeueRequest{All: *all}
	for _, a := range fs.Args() {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			fatalf("invalid operation id %q", a)
		}
		req.IDs = append(req.IDs, id)
	}
	resp, err := c.client.Sync.Requeue(ctx, req)
	check(err)
	if c.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("Requeued %d operation(s).\n", len(resp.Requeued))
}

func (c *cli) watch(ctx context.Context, prefixes []string) {
	stream, err := c.client.Sync.WatchEvents(ctx, &api.WatchEventsRequest{Prefixes: prefixes})
	check(err)
	for {
		env, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			check(err)
		}
		if c.json {
			outputJSON(env)
			continue
		}
		ts := time.UnixMilli(env.OccurredAtUnixMs).Format(time.TimeOnly)
		fmt.Printf("%s %-22s %s\n", ts, env.Kind, string(env.Payload))
	}
}

func loadConfig() *config.Config {
	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fatalf("load config: %v", err)
	}
	return cfg
}

func check(err error) {
	if err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
