package services

import (
	"context"
	"fmt"

	"auction-engine/internal/domain"

	"github.com/dustin/go-humanize"
)

func outbidMessage(auction domain.Auction, bid domain.Bid) string {
	return fmt.Sprintf("You have been outbid on \"%s\": the highest bid is now %s.",
		auction.Title, humanize.Comma(bid.Amount))
}

func winnerMessage(auction domain.Auction, bid domain.Bid) string {
	return fmt.Sprintf("You won \"%s\" for %s.", auction.Title, humanize.Comma(bid.Amount))
}

func soldMessage(auction domain.Auction, bid domain.Bid) string {
	return fmt.Sprintf("Your auction \"%s\" closed: sold to %s for %s.",
		auction.Title, bid.Bidder, humanize.Comma(bid.Amount))
}

func unsoldMessage(auction domain.Auction) string {
	return fmt.Sprintf("Your auction \"%s\" closed without any bids.", auction.Title)
}

func deletedMessage(auction domain.Auction) string {
	return fmt.Sprintf("The auction \"%s\" was removed by the moderator.", auction.Title)
}

func bannedMessage() string {
	return "Your account has been banned by the moderator."
}

// notify persists a notification and announces it on the process registry.
// Failures are logged; they never fail the operation that caused them.
func (am *AuctionManager) notify(ctx context.Context, receiver, content string) {
	if receiver == "" {
		return
	}

	n, err := am.store.SaveNotification(ctx, domain.Notification{
		Timestamp: am.clock.Now(),
		Content:   content,
		Receiver:  receiver,
	})
	if err != nil {
		am.log.Error("Failed to save notification", "receiver", receiver, "error", err)
		return
	}

	am.events.Publish(domain.NotificationPosted{Notification: n})
}
