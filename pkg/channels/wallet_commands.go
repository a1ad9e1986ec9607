package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/mantlegpt/mantlebot/pkg/blockchain"
	"github.com/mantlegpt/mantlebot/pkg/custody"
	"github.com/mantlegpt/mantlebot/pkg/intent"
	"github.com/mantlegpt/mantlebot/pkg/logger"
	"github.com/mantlegpt/mantlebot/pkg/vault"
)

func (c *TelegramChannel) sendStart(ctx context.Context, msg *telego.Message) {
	c.replyWithKeyboard(ctx, msg,
		"Welcome to MantleGPT - an AI powered Wallet Bot for the Mantle Network! 🤖\n\n"+
			"I can help you manage your Mantle wallet using natural language.\n\n"+
			"Use the options below or type naturally!")
}

func (c *TelegramChannel) sendHelp(ctx context.Context, msg *telego.Message) {
	c.reply(ctx, msg,
		"🔹 Available Commands:\n\n"+
			"/create - Create a new wallet\n"+
			"/connect - Connect existing wallet\n"+
			"/balance - Check wallet balance\n"+
			"/transfer - Send "+c.svc.NativeSymbol()+" to another address\n"+
			"/help - Show this help message\n\n"+
			"🔸 Natural Language Commands:\n\n"+
			"• \"Check my balance\"\n"+
			"• \"Send 0.1 "+c.svc.NativeSymbol()+" to 0x123...\"\n"+
			"• \"Pay 5 "+c.svc.TokenSymbol()+" to 0x789...\"\n"+
			"• \"What is my wallet address?\"\n\n"+
			"💡 Transfer Tips:\n"+
			"• Always double-check the recipient address\n"+
			"• Remember to account for gas fees\n"+
			"• You can cancel any transfer before confirming")
}

func (c *TelegramChannel) sendTransferHelp(ctx context.Context, msg *telego.Message) {
	if _, err := c.svc.GetAddress(msg.From.ID); errors.Is(err, custody.ErrNoWallet) {
		c.sendNoWallet(ctx, msg)
		return
	}
	c.reply(ctx, msg,
		"💸 How to Transfer "+c.svc.NativeSymbol()+":\n\n"+
			"Type your transfer like this:\n"+
			"• \"Send 5 "+c.svc.NativeSymbol()+" to 0x123...\"\n"+
			"• \"Transfer 1.5 "+c.svc.NativeSymbol()+" to 0x456...\"\n"+
			"• \"Pay 0.1 "+c.svc.TokenSymbol()+" to 0x789...\"\n\n"+
			"⚠️ Important:\n"+
			"• Always verify the recipient address\n"+
			"• Keep some "+c.svc.NativeSymbol()+" for gas fees\n"+
			"• You can cancel before confirming")
}

func (c *TelegramChannel) sendNoWallet(ctx context.Context, msg *telego.Message) {
	c.replyWithKeyboard(ctx, msg,
		"❌ No wallet found!\n\n"+
			"Would you like to:\n"+
			"1️⃣ Create a new wallet with /create\n"+
			"2️⃣ Connect existing wallet with /connect\n\n"+
			"Or use the buttons below 👇")
}

func (c *TelegramChannel) doCreate(ctx context.Context, msg *telego.Message) {
	address, err := c.svc.CreateWallet(msg.From.ID)
	if err != nil {
		logger.ErrorCF("telegram", "Wallet creation failed", map[string]any{
			"error": err.Error(),
		})
		c.reply(ctx, msg, "Sorry, there was an error creating your wallet.")
		return
	}
	c.replyMarkdown(ctx, msg, fmt.Sprintf(
		"✅ Wallet created successfully!\n\n"+
			"Your wallet address: `%s`\n\n"+
			"Keep your wallet details safe!", address.Hex()))
}

func (c *TelegramChannel) doConnectPrompt(ctx context.Context, msg *telego.Message) {
	c.awaitKey(msg.From.ID, true)
	c.reply(ctx, msg,
		"Please send me your private key to connect your existing wallet.\n"+
			"⚠️ Warning: Never share your private key with anyone else!")
}

func (c *TelegramChannel) doKeyImport(ctx context.Context, msg *telego.Message) {
	c.awaitKey(msg.From.ID, false)

	address, err := c.svc.ConnectWallet(msg.From.ID, msg.Text)
	if err != nil {
		c.reply(ctx, msg, "❌ Invalid private key. Please try again with /connect")
		return
	}

	c.replyMarkdown(ctx, msg, fmt.Sprintf(
		"✅ Wallet connected successfully!\n\n"+
			"Your wallet address: `%s`", address.Hex()))

	// The message containing the private key must not stay in the chat.
	if err := c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(msg.Chat.ID),
		MessageID: msg.MessageID,
	}); err != nil {
		logger.WarnCF("telegram", "Failed to delete private key message", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *TelegramChannel) doBalance(ctx context.Context, msg *telego.Message) {
	balances, err := c.svc.GetBalances(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, custody.ErrNoWallet) {
			c.sendNoWallet(ctx, msg)
			return
		}
		logger.ErrorCF("telegram", "Balance query failed", map[string]any{
			"error": err.Error(),
		})
		c.reply(ctx, msg, "Sorry, there was an error checking your balance.")
		return
	}

	c.replyMarkdown(ctx, msg, fmt.Sprintf(
		"💰 Your wallet balances:\n\n"+
			"• %s %s\n"+
			"• %s %s",
		balances.Native.Format(), balances.Native.Symbol,
		balances.Token.Format(), balances.Token.Symbol))
}

func (c *TelegramChannel) doAddress(ctx context.Context, msg *telego.Message) {
	address, err := c.svc.GetAddress(msg.From.ID)
	if err != nil {
		c.reply(ctx, msg,
			"❌ No wallet found. Use /create to create a new wallet or /connect to connect an existing one.")
		return
	}
	c.replyMarkdown(ctx, msg, fmt.Sprintf(
		"🔑 Your wallet address is:\n`%s`", address.Hex()))
}

func (c *TelegramChannel) doTransferIntent(ctx context.Context, msg *telego.Message, resolved intent.Intent) {
	if resolved.Amount == "" || resolved.To == "" {
		c.reply(ctx, msg,
			"I couldn't understand the transfer details.\n"+
				"Please specify the amount and recipient address clearly.\n"+
				"Example: \"Send 0.1 "+c.svc.NativeSymbol()+" to 0x123...\"")
		return
	}

	amount, err := intent.NormalizeAmount(resolved.Amount)
	if err != nil {
		c.reply(ctx, msg,
			"Invalid amount format. Please specify a valid number.\n"+
				"Example: \"Send 0.1 "+c.svc.NativeSymbol()+" to 0x...\" or \"Send 5 "+c.svc.TokenSymbol()+" to 0x...\"")
		return
	}

	transfer, err := c.svc.SubmitTransferIntent(msg.From.ID, amount, resolved.Token, resolved.To)
	if err != nil {
		switch {
		case errors.Is(err, custody.ErrTransferPending):
			c.reply(ctx, msg,
				"⏳ You already have a transfer waiting.\n"+
					"Reply with 'confirm' to send it or 'cancel' to drop it before starting a new one.")
		case errors.Is(err, custody.ErrInvalidAddress):
			c.reply(ctx, msg, "That doesn't look like a valid address. Please double-check it.")
		case errors.Is(err, custody.ErrInvalidAmount):
			c.reply(ctx, msg, "Invalid amount format. Please specify a valid number.")
		default:
			c.reply(ctx, msg, "Sorry, I could not process your request.")
		}
		return
	}

	c.reply(ctx, msg, fmt.Sprintf(
		"🔄 Confirm Transaction:\n\n"+
			"Amount: %s %s\n"+
			"To: %s\n\n"+
			"Reply with 'confirm' to proceed or 'cancel' to cancel.",
		transfer.Amount, c.symbolFor(transfer.Asset), transfer.To.Hex()))
}

func (c *TelegramChannel) doConfirm(ctx context.Context, msg *telego.Message) {
	c.reply(ctx, msg, "Processing transaction...")

	receipt, err := c.svc.ConfirmPending(ctx, msg.From.ID)
	if err != nil {
		c.sendConfirmError(ctx, msg, err)
		return
	}

	text := fmt.Sprintf(
		"✅ Transaction successful!\n\n"+
			"Amount: %s %s\n"+
			"To: %s\n"+
			"Transaction Hash: `%s`",
		receipt.Amount, receipt.Symbol, receipt.To.Hex(), receipt.Hash.Hex())
	if c.explorerURL != "" {
		text += fmt.Sprintf("\n\nView on Explorer: %s/tx/%s", c.explorerURL, receipt.Hash.Hex())
	}
	c.replyMarkdown(ctx, msg, text)
}

func (c *TelegramChannel) doCancel(ctx context.Context, msg *telego.Message) {
	if err := c.svc.CancelPending(msg.From.ID); err != nil {
		c.reply(ctx, msg, "No pending transaction to confirm.")
		return
	}
	c.reply(ctx, msg, "Transaction cancelled.")
}

// sendConfirmError translates the custody error taxonomy into user-facing
// text. Never leaks internals beyond the typed failures' own messages.
func (c *TelegramChannel) sendConfirmError(ctx context.Context, msg *telego.Message, err error) {
	var (
		insufficient *custody.InsufficientFundsError
		failed       *custody.TransferFailedError
		rpc          *blockchain.RPCError
	)

	switch {
	case errors.Is(err, custody.ErrNoPendingTransaction):
		c.reply(ctx, msg, "No pending transaction to confirm.")
	case errors.Is(err, custody.ErrNoWallet):
		c.sendNoWallet(ctx, msg)
	case errors.As(err, &insufficient):
		c.reply(ctx, msg, "❌ Transaction failed:\n"+insufficient.Error())
	case errors.As(err, &failed):
		reason := "the network rejected the transaction"
		var inner *custody.InsufficientFundsError
		switch {
		case errors.As(failed.Err, &inner):
			reason = inner.Error()
		case errors.Is(failed.Err, vault.ErrEncryption):
			reason = "your stored key could not be unlocked"
		case errors.As(failed.Err, &rpc):
			reason = "the network could not be reached"
		}
		c.reply(ctx, msg, "❌ Transaction failed:\n"+reason)
	case errors.As(err, &rpc):
		c.reply(ctx, msg, "❌ The network could not be reached. Please try again in a moment.")
	default:
		logger.ErrorCF("telegram", "Unexpected confirm failure", map[string]any{
			"error": err.Error(),
		})
		c.reply(ctx, msg, "Sorry, there was an error processing your request.")
	}
}

func (c *TelegramChannel) symbolFor(asset blockchain.Asset) string {
	if asset == blockchain.AssetToken {
		return c.svc.TokenSymbol()
	}
	return c.svc.NativeSymbol()
}
