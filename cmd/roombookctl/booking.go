package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/roombook/internal/api"
	"github.com/matheus3301/roombook/internal/checkin"
	"github.com/matheus3301/roombook/internal/conflict"
	"github.com/matheus3301/roombook/internal/domain"
)

// timeLayouts are accepted by --start and --end, tried in order.
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04"}

func (c *cli) location() *time.Location {
	loc, err := c.cfg.Location()
	if err != nil {
		fatalf("%v", err)
	}
	return loc
}

func (c *cli) parseTime(name, value string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, c.location()); err == nil {
			return t
		}
	}
	fatalf("invalid --%s %q, want YYYY-MM-DD HH:MM or RFC3339", name, value)
	return time.Time{}
}

func (c *cli) rooms(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("rooms", flag.ExitOnError)
	active := fs.Bool("active", false, "only rooms that accept bookings")
	_ = fs.Parse(args)

	resp, err := c.client.Booking.ListRooms(ctx, &api.ListRoomsRequest{ActiveOnly: *active})
	check(err)
	if c.json {
		outputJSON(resp)
		return
	}
	if len(resp.Rooms) == 0 {
		fmt.Println("No rooms cached. Run `roombookctl sync` while online.")
		return
	}
	for _, r := range resp.Rooms {
		fmt.Printf("%-36s %-20s cap=%-3d %-8s %s %s\n", r.ID, r.Name, r.Capacity, r.Status, r.Building, r.Floor)
	}
}

func (c *cli) bookings(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("bookings", flag.ExitOnError)
	room := fs.String("room", "", "room id")
	user := fs.String("user", "", "user id")
	from := fs.String("from", "", "only bookings ending after this time")
	to := fs.String("to", "", "only bookings starting before this time")
	all := fs.Bool("all", false, "include cancelled and waitlisted bookings")
	_ = fs.Parse(args)

	req := &api.ListBookingsRequest{RoomID: *room, UserID: *user}
	if !*all {
		req.Statuses = []domain.BookingStatus{domain.BookingConfirmed}
	}
	if *from != "" {
		req.From = c.parseTime("from", *from)
	}
	if *to != "" {
		req.To = c.parseTime("to", *to)
	}
	resp, err := c.client.Booking.ListBookings(ctx, req)
	check(err)
	if c.json {
		outputJSON(resp)
		return
	}
	if len(resp.Bookings) == 0 {
		fmt.Println("No bookings.")
		return
	}
	for _, b := range resp.Bookings {
		c.printBooking(b)
	}
}

// booking handles the commands that take a booking request.
func (c *cli) booking(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	room := fs.String("room", "", "room id (required)")
	user := fs.String("user", os.Getenv("USER"), "user id")
	title := fs.String("title", "", "meeting title")
	start := fs.String("start", "", "start time (required)")
	end := fs.String("end", "", "end time")
	duration := fs.Duration("duration", time.Hour, "length when --end is omitted")
	priority := fs.String("priority", "normal", "low, normal, high or critical")
	department := fs.String("department", "", "department")
	actor := fs.String("actor", os.Getenv("USER"), "override: acting administrator")
	reason := fs.String("reason", "", "override: reason recorded in the audit log")
	_ = fs.Parse(args)

	if *room == "" || *start == "" {
		fatalf("%s requires --room and --start", cmd)
	}
	prio, err := domain.ParsePriority(*priority)
	check(err)
	req := &api.BookingRequest{
		RoomID:     *room,
		UserID:     *user,
		Title:      *title,
		Start:      c.parseTime("start", *start),
		Priority:   prio,
		Department: *department,
	}
	if *end != "" {
		req.End = c.parseTime("end", *end)
	} else {
		req.End = req.Start.Add(*duration)
	}

	switch cmd {
	case "book":
		resp, err := c.client.Booking.Book(ctx, req)
		check(err)
		c.printBookResponse(resp)
	case "waitlist":
		resp, err := c.client.Booking.Waitlist(ctx, req)
		check(err)
		c.printBookResponse(resp)
	case "conflicts":
		resp, err := c.client.Booking.CheckConflicts(ctx, req)
		check(err)
		if c.json {
			outputJSON(resp)
			return
		}
		if len(resp.Conflicts) == 0 {
			fmt.Println("No conflicts.")
			return
		}
		for _, b := range resp.Conflicts {
			c.printBooking(b)
		}
	case "suggest":
		resp, err := c.client.Booking.Suggest(ctx, req)
		check(err)
		if c.json {
			outputJSON(resp)
			return
		}
		c.printSuggestions(resp.Suggestions)
	case "override":
		resp, err := c.client.Booking.Override(ctx, &api.OverrideRequest{Booking: *req, ActorID: *actor, Reason: *reason})
		check(err)
		if c.json {
			outputJSON(resp)
			return
		}
		fmt.Println("Booked:")
		c.printBooking(*resp.Booking)
		if len(resp.Displaced) > 0 {
			fmt.Println("Moved to waitlist:")
			for _, b := range resp.Displaced {
				c.printBooking(b)
			}
		}
	}
}

func (c *cli) cancel(ctx context.Context, args []string) {
	if len(args) != 1 {
		fatalf("usage: roombookctl cancel <booking-id>")
	}
	resp, err := c.client.Booking.Cancel(ctx, &api.CancelRequest{ID: args[0]})
	check(err)
	if c.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("Cancelled %s.\n", resp.Booking.ID)
}

func (c *cli) qr(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("qr", flag.ExitOnError)
	png := fs.String("png", "", "write a PNG to this path instead of printing")
	size := fs.Int("size", 256, "PNG size in pixels")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fatalf("usage: roombookctl qr <booking-id> [--png file]")
	}
	id := fs.Arg(0)

	resp, err := c.client.Booking.ListBookings(ctx, &api.ListBookingsRequest{})
	check(err)
	var booking *domain.Booking
	for i := range resp.Bookings {
		if resp.Bookings[i].ID == id {
			booking = &resp.Bookings[i]
			break
		}
	}
	if booking == nil {
		fatalf("booking %s not found", id)
	}

	link, err := checkin.URL(c.cfg.CheckinBase(), *booking)
	check(err)
	if *png != "" {
		check(checkin.WritePNG(link, *png, *size))
		fmt.Printf("Wrote %s\n", *png)
		return
	}
	art, err := checkin.Render(link)
	check(err)
	fmt.Print(art)
	fmt.Println(link)
}

func (c *cli) printBookResponse(resp *api.BookResponse) {
	if c.json {
		outputJSON(resp)
		return
	}
	if resp.Booking != nil {
		fmt.Printf("%s %s\n", resp.Booking.Status, resp.Booking.ID)
		return
	}
	fmt.Println("Room is taken by:")
	for _, b := range resp.Conflicts {
		c.printBooking(b)
	}
	c.printSuggestions(resp.Suggestions)
	os.Exit(2)
}

func (c *cli) printSuggestions(suggestions []conflict.Suggestion) {
	if len(suggestions) == 0 {
		fmt.Println("No alternatives available.")
		return
	}
	fmt.Println("Alternatives:")
	for _, s := range suggestions {
		room := s.RoomID
		if s.RoomName != "" {
			room = s.RoomName
		}
		fmt.Printf("  %-5s %-20s %s %s-%s\n", s.Kind, room, s.Date,
			s.Start.In(c.location()).Format("15:04"), s.End.In(c.location()).Format("15:04"))
	}
}

func (c *cli) printBooking(b domain.Booking) {
	loc := c.location()
	fmt.Printf("%-36s %-10s %-20s %s %s-%s %-8s %s\n", b.ID, b.Status, b.RoomID,
		b.Start.In(loc).Format("2006-01-02"), b.Start.In(loc).Format("15:04"), b.End.In(loc).Format("15:04"),
		b.Priority, b.Title)
}
