package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/rbroggi/slotcast/internal/config"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
}

var envFile = flag.String("env-file", "", "optional dotenv file loaded before reading the environment")

// layout maps every topic to the subscriptions it needs.
type layout map[string][]string

// parseLayout reads TOPIC1:SUB11:SUB12,TOPIC2:SUB21 into a layout.
func parseLayout(raw string) layout {
	l := layout{}
	for _, item := range strings.Split(raw, ",") {
		parts := strings.Split(strings.ReplaceAll(item, " ", ""), ":")
		if parts[0] == "" {
			continue
		}
		l[parts[0]] = append(l[parts[0]], parts[1:]...)
	}
	return l
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.WithError(err).Fatal("error loading configuration")
	}

	// Without arguments the topics and subscription the server and the worker use are created.
	topics := layout{
		cfg.PubSubEventTopic:  {cfg.PubSubEventSubscription},
		cfg.PubSubPublicTopic: nil,
	}
	if flag.NArg() > 0 {
		topics = parseLayout(flag.Arg(0))
	}

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
	if err != nil {
		log.WithError(err).WithField("project", cfg.PubSubProjectID).Fatal("unable to create pubsub client")
	}
	defer client.Close()

	for topicID, subscriptions := range topics {
		topic, err := client.CreateTopic(ctx, topicID)
		if status.Code(err) == codes.AlreadyExists {
			topic = client.Topic(topicID)
		} else if err != nil {
			log.WithError(err).WithField("topic", topicID).Fatal("unable to create topic")
		}

		for _, subscriptionID := range subscriptions {
			_, err = client.CreateSubscription(ctx, subscriptionID, pubsub.SubscriptionConfig{Topic: topic})
			if err != nil && status.Code(err) != codes.AlreadyExists {
				log.WithError(err).
					WithField("topic", topicID).
					WithField("subscription", subscriptionID).
					Fatal("unable to create subscription")
			}
			log.WithFields(log.Fields{
				"project":      cfg.PubSubProjectID,
				"topic":        topicID,
				"subscription": subscriptionID,
			}).Info("subscription ready")
		}
		log.WithField("topic", topicID).Info("topic ready")
	}
}
