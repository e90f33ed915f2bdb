package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/chatsync/internal/client"
	"github.com/dkeye/chatsync/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	pflag.String("server", "http://localhost:8080", "chat server base URL")
	pflag.String("user", "", "username to chat as")
	pflag.Bool("register", false, "register the user before connecting")
	pflag.Bool("verbose", false, "debug logging")
	pflag.Parse()

	v := viper.New()
	v.SetEnvPrefix("CHATSYNC")
	v.AutomaticEnv()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		log.Fatal().Err(err).Msg("bind flags")
	}
	if v.GetBool("verbose") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	me := v.GetString("user")
	if me == "" {
		log.Fatal().Msg("--user is required")
	}
	base, err := url.Parse(v.GetString("server"))
	if err != nil {
		log.Fatal().Err(err).Msg("bad --server")
	}

	api := client.NewHTTPAPI(base)
	if v.GetBool("register") {
		if _, err := api.RegisterUser(ctx, me); err != nil {
			log.Fatal().Err(err).Msg("register")
		}
	}

	wsURL := *base
	wsURL.Scheme = strings.Replace(wsURL.Scheme, "http", "ws", 1)
	ch, err := client.DialWS(ctx, wsURL.JoinPath("ws").String(), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("connect realtime channel")
	}
	defer ch.Close()

	rec := client.NewReconciler(me, api, ch)
	defer func() { _ = rec.Close() }()
	if err := rec.Load(ctx); err != nil {
		log.Error().Err(err).Msg("load chats")
	}
	printChats(rec.State())

	go func() {
		if err := rec.Run(ctx, watch(ctx, ch.Updates(), rec)); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("realtime")
		}
		cancel()
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	fmt.Println("commands: /list  /open <chatId>  /close  /new <username>  /user <username>  /quit  (anything else is sent)")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(ctx, rec, line); quit {
				return
			}
		}
	}
}

func handleLine(ctx context.Context, rec *client.Reconciler, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	var err error
	switch cmd {
	case "/quit":
		return true
	case "/list":
		err = rec.Load(ctx)
		printChats(rec.State())
	case "/open":
		if err = rec.SelectChat(ctx, domain.ChatID(arg)); err == nil {
			printSelected(rec.State())
		}
	case "/close":
		err = rec.Deselect()
	case "/user":
		if arg == "" {
			fmt.Println("! /user needs a username")
			break
		}
		if err = rec.SwitchUser(ctx, arg); err == nil {
			printChats(rec.State())
		}
	case "/new":
		rec.OpenCreatePanel(arg)
		if err = rec.CreateChat(ctx); err == nil {
			printSelected(rec.State())
		}
	default:
		rec.SetDraft(line)
		err = rec.SendMessage(ctx)
	}
	if err != nil {
		fmt.Println("!", err)
	}
	return false
}

// watch forwards updates and prints the ones that touch the open chat. It
// stops when ctx is done, which main cancels once Run has returned.
func watch(ctx context.Context, in <-chan domain.ChatUpdate, rec *client.Reconciler) <-chan domain.ChatUpdate {
	out := make(chan domain.ChatUpdate)
	go func() {
		defer close(out)
		for u := range in {
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
			s := rec.State()
			switch {
			case u.Type == domain.ChatCreated:
				fmt.Printf("* new chat %s\n", u.Chat.ID)
			case s.Selected != nil && s.Selected.ID == u.Chat.ID && len(u.Chat.Messages) > 0:
				printMessage(u.Chat.Messages[len(u.Chat.Messages)-1])
			}
		}
	}()
	return out
}

func printChats(s client.State) {
	fmt.Printf("%d chat(s) for %s\n", len(s.Chats), s.Me)
	for _, c := range s.Chats {
		names := make([]string, 0, len(c.Participants))
		for _, p := range c.Participants {
			names = append(names, p.Username)
		}
		fmt.Printf("  %s  [%s]  %d message(s)\n", c.ID, strings.Join(names, ", "), len(c.Messages))
	}
}

func printSelected(s client.State) {
	if s.Selected == nil {
		return
	}
	fmt.Printf("-- chat %s --\n", s.Selected.ID)
	for _, m := range s.Selected.Messages {
		printMessage(m)
	}
}

func printMessage(m domain.PopulatedMessage) {
	fmt.Printf("[%s] %s: %s\n", m.SentAt.Local().Format("15:04:05"), m.AuthorUsername, m.Text)
}
