package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/spigell/outreach-matcher/internal/server"
	"go.uber.org/zap"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the outreach assistant in the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		chat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("session", "", "resume an existing session id (default is a new one)")
}

func chat(cmd *cobra.Command) {
	logger := mustLogger()
	defer logger.Sync()

	config, err := getConfig(viper.GetViper())
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx, config, logger)
	if err != nil {
		logger.Fatal("wiring components", zap.Error(err))
	}
	defer c.store.Close()

	sessionID, _ := cmd.Flags().GetString("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger.Debug("chat session", zap.String("session_id", sessionID))

	if err := converse(ctx, c.machine, sessionID, os.Stdout); err != nil {
		logger.Fatal("chat failed", zap.Error(err))
	}
}

// converse prints the greeting and relays prompt input until interrupted.
func converse(ctx context.Context, chat server.ChatHandler, sessionID string, out io.Writer) error {
	reply, err := chat.Handle(ctx, sessionID, "")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, reply)

	input := promptui.Prompt{Label: ">"}
	for {
		message, err := input.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		reply, err := chat.Handle(ctx, sessionID, message)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply)

		if ctx.Err() != nil {
			return nil
		}
	}
}
