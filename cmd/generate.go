package cmd

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	generateCount  int
	generateOutput string
	generateSplit  float64
	generateSeed   int64
	generateHTML   float64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a labelled test corpus",
	Long: `Generate a synthetic labelled corpus for trying out training and evaluation.

Ham files are named ham_NNNN.eml and spam files spam_NNNN.eml, so the default
ham marker labels them correctly. The same --seed always yields the same corpus.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if generateCount <= 0 {
			return fmt.Errorf("count must be greater than 0")
		}
		if generateSplit < 0 || generateSplit > 1 {
			return fmt.Errorf("spam-ratio must be between 0 and 1")
		}
		if generateHTML < 0 || generateHTML > 1 {
			return fmt.Errorf("html-ratio must be between 0 and 1")
		}

		spamCount := int(float64(generateCount) * generateSplit)
		hamCount := generateCount - spamCount

		fmt.Printf("🧪 Generating test emails...\n")
		fmt.Printf("📧 Total emails: %d\n", generateCount)
		fmt.Printf("🚫 Spam emails: %d (%.1f%%)\n", spamCount, generateSplit*100)
		fmt.Printf("✅ Ham emails: %d (%.1f%%)\n", hamCount, (1-generateSplit)*100)
		fmt.Printf("📂 Output directory: %s\n\n", generateOutput)

		start := time.Now()
		generator := NewEmailGenerator(generateSeed)
		generator.htmlRatio = generateHTML
		if err := generator.WriteCorpus(generateOutput, spamCount, hamCount); err != nil {
			return err
		}
		duration := time.Since(start)

		fmt.Printf("✅ Generation complete!\n")
		fmt.Printf("⏱️ Time taken: %v\n", duration)
		fmt.Printf("🚀 Next: spamlearn train %s model.json\n", generateOutput)
		return nil
	},
}

// EmailGenerator writes reproducible synthetic ham and spam
type EmailGenerator struct {
	rand      *rand.Rand
	// base anchors message dates so a seed fully determines the output
	base      time.Time
	// htmlRatio is the share of spam sent as multipart text and HTML
	htmlRatio float64

	spamSubjects []string
	hamSubjects  []string
	spamBodies   []string
	hamBodies    []string
	spamDomains  []string
	hamDomains   []string
	spamKeywords []string
	hamKeywords  []string
	names        []string
	companies    []string
}

// NewEmailGenerator creates a generator seeded with seed
func NewEmailGenerator(seed int64) *EmailGenerator {
	return &EmailGenerator{
		rand:      rand.New(rand.NewSource(seed)),
		base:      time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC),
		htmlRatio: 0.3,

		spamSubjects: []string{
			"URGENT!!! FREE MONEY!!!",
			"You have won $1,000,000!!!",
			"ACT NOW - Limited time offer!",
			"Get rich quick - GUARANTEED!",
			"Nigerian Prince needs your help",
			"FREE Viagra - No prescription needed",
			"Lose 50 pounds in 10 days!",
			"Work from home - Make $5000/week",
			"CONGRATULATIONS - You're our winner!",
			"Click here for FREE gift cards",
			"Urgent: Your account will be closed",
			"Amazing investment opportunity",
		},

		hamSubjects: []string{
			"Meeting tomorrow at 2 PM",
			"Quarterly report attached",
			"Project update - Phase 2 complete",
			"Happy birthday!",
			"Weekend plans?",
			"Conference call notes",
			"Invoice #12345",
			"Welcome to our team",
			"System maintenance notice",
			"Monthly newsletter",
			"Re: Budget approval",
			"Lunch invitation",
		},

		spamBodies: []string{
			"Congratulations! You have been selected to receive FREE MONEY! No risk involved! GUARANTEED income! Act now before this offer expires! Click here: %s",
			"URGENT! Your account will be suspended unless you verify your information immediately! Click here to avoid suspension: %s",
			"Make money fast with our proven system! Thousands are already earning $10,000 per week! Join now: %s",
			"You have won our lottery! Claim your $1,000,000 prize now! Send your bank details to claim: %s",
			"Lose weight fast with our miracle pill! No diet or exercise needed! Order now: %s",
			"Get Viagra without prescription! Best prices guaranteed! Free shipping worldwide! Order: %s",
		},

		hamBodies: []string{
			"Hi there,\n\nI hope this email finds you well. I wanted to remind you about our meeting tomorrow at 2 PM in the conference room.\n\nWe'll be discussing the quarterly reports and planning for next quarter.\n\nPlease let me know if you need to reschedule.\n\nBest regards,\n%s",
			"Hello,\n\nPlease find attached the quarterly report for your review. The numbers look good overall, with a 15%% increase in revenue.\n\nLet me know if you have any questions.\n\nThanks,\n%s",
			"Hi team,\n\nJust a quick update on the project progress. Phase 2 has been completed successfully and we're on track for the deadline.\n\nNext steps:\n- Review deliverables\n- Prepare for Phase 3\n- Schedule team meeting\n\nBest,\n%s",
			"Dear %s,\n\nWe're planning a team lunch this Friday at 12:30 PM. Please let me know if you can make it.\n\nLooking forward to seeing everyone!\n\nRegards,\n%s",
		},

		spamDomains: []string{
			"get-rich-quick.com", "suspicious-domain.org", "free-money.net", "scam-alert.biz",
			"fake-bank.com", "phishing-site.net", "malware-host.org", "spam-central.com",
			"dodgy-pharma.net", "lottery-scam.org", "virus-download.com", "identity-theft.biz",
		},

		hamDomains: []string{
			"gmail.com", "yahoo.com", "outlook.com", "company.com", "university.edu",
			"government.gov", "nonprofit.org", "corporation.net", "startup.io", "tech-firm.com",
			"consulting.biz", "healthcare.org", "finance.com", "retail.net", "manufacturing.com",
		},

		spamKeywords: []string{
			"free money", "get rich", "make money fast", "guaranteed income", "no risk",
			"act now", "limited time", "urgent", "congratulations", "you have won",
			"lottery", "viagra", "lose weight", "work from home", "click here",
		},

		hamKeywords: []string{
			"meeting", "report", "project", "team", "schedule", "deadline", "budget",
			"invoice", "proposal", "update", "review", "conference", "training",
		},

		names: []string{
			"John Smith", "Jane Doe", "Mike Johnson", "Sarah Wilson", "David Brown",
			"Lisa Garcia", "Robert Miller", "Emily Davis", "Michael Anderson", "Jennifer Taylor",
			"Christopher Martinez", "Amanda Thomas", "Matthew Jackson", "Jessica White", "Daniel Harris",
		},

		companies: []string{
			"Tech Solutions Inc", "Global Dynamics", "Innovation Labs", "Future Systems",
			"Digital Ventures", "Smart Technologies", "Advanced Analytics", "Modern Enterprises",
			"NextGen Solutions", "Quantum Computing Co", "AI Innovations", "Cloud Services Ltd",
		},
	}
}

// WriteCorpus writes spam and ham files into dir, creating it if needed
func (g *EmailGenerator) WriteCorpus(dir string, spam, ham int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for i := 0; i < spam; i++ {
		name := filepath.Join(dir, fmt.Sprintf("spam_%04d.eml", i+1))
		if err := os.WriteFile(name, []byte(g.GenerateSpamEmail()), 0644); err != nil {
			return fmt.Errorf("failed to write spam email %d: %w", i+1, err)
		}
	}
	for i := 0; i < ham; i++ {
		name := filepath.Join(dir, fmt.Sprintf("ham_%04d.eml", i+1))
		if err := os.WriteFile(name, []byte(g.GenerateHamEmail()), 0644); err != nil {
			return fmt.Errorf("failed to write ham email %d: %w", i+1, err)
		}
	}
	return nil
}

// GenerateSpamEmail generates one spam message
func (g *EmailGenerator) GenerateSpamEmail() string {
	from := g.spamSender()
	subject := g.spamSubject()
	body := fmt.Sprintf(g.pick(g.spamBodies), fmt.Sprintf("http://%s/click-here", g.pick(g.spamDomains)))

	if g.rand.Float64() < g.htmlRatio {
		return g.formatMultipart(from, g.recipient(), subject, body)
	}
	return g.formatEmail(from, g.recipient(), subject, body)
}

// GenerateHamEmail generates one ham message
func (g *EmailGenerator) GenerateHamEmail() string {
	name := g.pick(g.names)
	body := fmt.Sprintf(g.pick(g.hamBodies), name, name)
	if g.rand.Float64() < 0.5 {
		body += fmt.Sprintf("\n\n%s\nRe: %s", g.pick(g.companies), g.pick(g.hamKeywords))
	}
	return g.formatEmail(g.hamSender(), g.recipient(), g.pick(g.hamSubjects), body)
}

func (g *EmailGenerator) spamSender() string {
	usernames := []string{"noreply", "admin", "support", "winner", "lottery", "offer", "deals"}
	return fmt.Sprintf("%s@%s", g.pick(usernames), g.pick(g.spamDomains))
}

func (g *EmailGenerator) hamSender() string {
	parts := strings.Fields(strings.ToLower(g.pick(g.names)))
	return fmt.Sprintf("%s.%s@%s", parts[0], parts[1], g.pick(g.hamDomains))
}

func (g *EmailGenerator) recipient() string {
	domains := []string{"example.com", "test.org", "demo.net", "sample.biz"}
	usernames := []string{"user", "customer", "employee", "member", "subscriber"}
	return fmt.Sprintf("%s@%s", g.pick(usernames), g.pick(domains))
}

// spamSubject shouts, repeats punctuation and appends keywords at random
func (g *EmailGenerator) spamSubject() string {
	subject := g.pick(g.spamSubjects)
	if g.rand.Float64() < 0.7 {
		subject = strings.ReplaceAll(subject, "!", "!!!")
	}
	if g.rand.Float64() < 0.5 {
		subject = strings.ToUpper(subject)
	}
	if g.rand.Float64() < 0.3 {
		subject = fmt.Sprintf("%s - %s", subject, strings.ToUpper(g.pick(g.spamKeywords)))
	}
	return subject
}

func (g *EmailGenerator) headers(from, to, subject string) string {
	date := g.base.Add(-time.Duration(g.rand.Intn(365*24)) * time.Hour)
	return fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\nMessage-ID: <%d@generator.local>\r\n",
		from, to, subject, date.Format(time.RFC1123Z), g.rand.Int63())
}

func (g *EmailGenerator) formatEmail(from, to, subject, body string) string {
	return g.headers(from, to, subject) + "\r\n" + body + "\r\n"
}

// formatMultipart sends body as text/plain plus an HTML alternative
func (g *EmailGenerator) formatMultipart(from, to, subject, body string) string {
	boundary := fmt.Sprintf("b%016x", g.rand.Uint64())
	var sb strings.Builder
	sb.WriteString(g.headers(from, to, subject))
	sb.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&sb, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&sb, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, body)
	fmt.Fprintf(&sb, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n", boundary)
	fmt.Fprintf(&sb, "<html><body><p><b>%s</b></p><p>%s</p></body></html>\r\n", strings.ToUpper(subject), body)
	fmt.Fprintf(&sb, "--%s--\r\n", boundary)
	return sb.String()
}

func (g *EmailGenerator) pick(items []string) string {
	return items[g.rand.Intn(len(items))]
}

func init() {
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", 100, "Number of emails to generate")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "test-data", "Output directory")
	generateCmd.Flags().Float64VarP(&generateSplit, "spam-ratio", "r", 0.3, "Ratio of spam emails (0.0-1.0)")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 1, "Random seed")
	generateCmd.Flags().Float64Var(&generateHTML, "html-ratio", 0.3, "Ratio of spam sent as multipart HTML (0.0-1.0)")
}
