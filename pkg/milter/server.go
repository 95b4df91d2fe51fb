package milter

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/d--j/go-milter"
	"github.com/sirupsen/logrus"

	"github.com/zpam/spamlearn/pkg/config"
	"github.com/zpam/spamlearn/pkg/email"
	"github.com/zpam/spamlearn/pkg/filter"
	"github.com/zpam/spamlearn/pkg/logger"
)

// Server classifies live mail with a trained model. The model is never
// updated by the server.
type Server struct {
	config     *config.Config
	classifier *filter.EmailClassifier
	milterSrv  *milter.Server
	log        *logrus.Entry
}

// NewServer creates a new milter server with the given configuration
func NewServer(cfg *config.Config, classifier *filter.EmailClassifier, log *logrus.Entry) (*Server, error) {
	if !cfg.Milter.Enabled {
		return nil, fmt.Errorf("milter is not enabled in configuration")
	}
	if !classifier.Trained() {
		return nil, filter.ErrNotTrained
	}
	log = logger.OrDiscard(log, "milter")

	// Live mail is tokenised exactly as the training mail was
	parserOpts := classifier.Options().Parser
	parser := email.NewParser(parserOpts)
	tokenizer := email.NewTokenizer(parserOpts)

	var milterOpts []milter.Option

	// Configure protocol options (what events to skip)
	var skipProtocols milter.OptProtocol
	if cfg.Milter.SkipConnect {
		skipProtocols |= milter.OptNoConnect
	}
	if cfg.Milter.SkipHelo {
		skipProtocols |= milter.OptNoHelo
	}
	if cfg.Milter.SkipRcpt {
		skipProtocols |= milter.OptNoRcptTo
	}
	if skipProtocols != 0 {
		milterOpts = append(milterOpts, milter.WithProtocol(skipProtocols))
	}

	if cfg.Milter.AddSpamHeaders {
		milterOpts = append(milterOpts, milter.WithAction(milter.OptAddHeader))
	}

	// Configure timeouts
	if cfg.Milter.ReadTimeoutMs > 0 {
		milterOpts = append(milterOpts, milter.WithReadTimeout(
			time.Duration(cfg.Milter.ReadTimeoutMs)*time.Millisecond))
	}
	if cfg.Milter.WriteTimeoutMs > 0 {
		milterOpts = append(milterOpts, milter.WithWriteTimeout(
			time.Duration(cfg.Milter.WriteTimeoutMs)*time.Millisecond))
	}

	milterOpts = append(milterOpts, milter.WithMilter(func() milter.Milter {
		return NewHandler(cfg.Milter, classifier, parser, tokenizer, log)
	}))

	return &Server{
		config:     cfg,
		classifier: classifier,
		milterSrv:  milter.NewServer(milterOpts...),
		log:        log,
	}, nil
}

// Listen opens the configured socket
func (s *Server) Listen() (net.Listener, error) {
	listener, err := net.Listen(s.config.Milter.Network, s.config.Milter.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s %s: %w", s.config.Milter.Network, s.config.Milter.Address, err)
	}
	return listener, nil
}

// Serve starts the milter server and listens for connections
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.log.WithFields(logrus.Fields{
		"address":  listener.Addr().String(),
		"model_id": s.classifier.ModelID(),
	}).Info("milter server listening")

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.milterSrv.Serve(listener)
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			time.Duration(s.config.Milter.GracefulShutdownTimeout)*time.Millisecond,
		)
		defer cancel()

		if err := s.milterSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown milter server: %w", err)
		}
		s.log.Info("milter server stopped")
		return ctx.Err()

	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("milter server error: %w", err)
		}
		return nil
	}
}

// Close closes the milter server
func (s *Server) Close() error {
	return s.milterSrv.Close()
}

// Stats returns server statistics
func (s *Server) Stats() ServerStats {
	return ServerStats{
		MilterCount: s.milterSrv.MilterCount(),
		ModelID:     s.classifier.ModelID(),
	}
}

// ServerStats contains server statistics
type ServerStats struct {
	MilterCount uint64 // Total number of milter instances created
	ModelID     string
}
