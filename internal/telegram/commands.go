package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type handlerFunc func(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error

// commandSpec pins down one bot command: its argument requirement and its
// handler. The set is closed; free-text messages are never interpreted as
// commands.
type commandSpec struct {
	usage    string
	needsArg bool
	handler  handlerFunc
}

func commandTable() map[string]commandSpec {
	return map[string]commandSpec{
		"start":        {usage: "/start", handler: handleStart},
		"help":         {usage: "/help", handler: handleHelp},
		"redeem":       {usage: "/redeem ET-XXXX-XXXX", needsArg: true, handler: handleRedeem},
		"gpt":          {usage: "/gpt <question>", needsArg: true, handler: handleGPT},
		"image":        {usage: "/image <description>", needsArg: true, handler: handleImage},
		"fetch":        {usage: "/fetch <url>", needsArg: true, handler: handleFetch},
		"translate":    {usage: "/translate <language> <text>", needsArg: true, handler: handleTranslate},
		"news":         {usage: "/news [topic]", handler: handleNews},
		"summarize":    {usage: "/summarize <url>", needsArg: true, handler: handleSummarize},
		"myquota":      {usage: "/myquota", handler: handleMyQuota},
		"courses":      {usage: "/courses", handler: handleCourses},
		"bootcamp":     {usage: "/bootcamp", handler: handleBootcamp},
		"enroll":       {usage: "/enroll <course>", needsArg: true, handler: handleEnroll},
		"lesson":       {usage: "/lesson <number>", needsArg: true, handler: handleLesson},
		"complete":     {usage: "/complete <lesson> <course>", needsArg: true, handler: handleComplete},
		"quiz":         {usage: "/quiz [course or lesson]", handler: handleQuiz},
		"score":        {usage: "/score <0-100> <course>", needsArg: true, handler: handleScore},
		"progress":     {usage: "/progress", handler: handleProgress},
		"certificates": {usage: "/certificates", handler: handleCertificates},
		"verify":       {usage: "/verify <certificate-id>", needsArg: true, handler: handleVerify},
	}
}

func handleStart(ctx context.Context, b *Bot, msg *tgbotapi.Message, _ string) error {
	text := "Welcome! This bot gives you AI chat, web access and free AI courses.\n\n" +
		"To unlock it you need an access code from a sponsor:\n" +
		"/redeem ET-XXXX-XXXX\n\n" +
		"Once redeemed you get 500 AI credits and 100 web fetches.\n" +
		"Send /help for everything I can do, or /courses to browse the free courses."
	b.sendText(msg.Chat.ID, text)
	return nil
}

func handleHelp(ctx context.Context, b *Bot, msg *tgbotapi.Message, _ string) error {
	text := "Commands:\n\n" +
		"/redeem <code> - unlock the bot with an access code\n" +
		"/gpt <question> - ask AI anything (1 credit)\n" +
		"/image <description> - generate an image (3 credits)\n" +
		"/fetch <url> - read a web page (1 fetch)\n" +
		"/translate <language> <text> - translate (1 credit)\n" +
		"/news [topic] - news summary (1 credit)\n" +
		"/summarize <url> - fetch and summarize (1 fetch + 1 credit)\n" +
		"/myquota - check your remaining credits\n\n" +
		"Learning:\n" +
		"/courses - browse courses\n" +
		"/enroll <course> - start a free course\n" +
		"/lesson <number> - read a lesson\n" +
		"/complete <lesson> <course> - mark a lesson done\n" +
		"/quiz [course or lesson] - practice quiz (1 credit)\n" +
		"/score <0-100> <course> - submit your final quiz score\n" +
		"/progress - your course progress\n" +
		"/certificates - your earned certificates\n" +
		"/verify <id> - verify any certificate\n" +
		"/bootcamp - the premium professional program"
	b.sendText(msg.Chat.ID, text)
	return nil
}

func handleRedeem(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error {
	user, created, err := b.redemption.Redeem(ctx, msg.From.ID, args)
	if err != nil {
		return err
	}
	greeting := "Welcome back!"
	if created {
		greeting = "Welcome aboard!"
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf(
		"%s Code accepted.\n\nYour balance:\nAI credits: %d\nWeb fetches: %d\n\nTry /gpt What can you help me with?",
		greeting, user.QuotaGPT, user.QuotaFetch))
	return nil
}

func handleGPT(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error {
	reply, err := b.actions.Chat(ctx, msg.From.ID, args)
	if err != nil {
		return err
	}
	b.sendText(msg.Chat.ID, reply)
	return nil
}

func handleImage(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error {
	url, err := b.actions.Image(ctx, msg.From.ID, args)
	if err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileURL(url))
	if _, err := b.api.Send(photo); err != nil {
		// The image exists; fall back to the link rather than failing.
		b.log.Warn("send photo failed", "error", err)
		b.sendText(msg.Chat.ID, "Your image: "+url)
	}
	return nil
}

func handleFetch(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error {
	text, err := b.actions.Fetch(ctx, msg.From.ID, args)
	if err != nil {
		return err
	}
	b.sendText(msg.Chat.ID, text)
	return nil
}

func handleTranslate(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error {
	parts := strings.SplitN(args, " ", 2)
	if len(parts) < 2 {
		b.sendText(msg.Chat.ID, "Usage: /translate <language> <text>\nExample: /translate amharic Hello, how are you?")
		return nil
	}
	reply, err := b.actions.Translate(ctx, msg.From.ID, parts[0], parts[1])
	if err != nil {
		return err
	}
	b.sendText(msg.Chat.ID, reply)
	return nil
}

// newsTopic falls back to a general briefing when no topic is given.
func newsTopic(args string) string {
	if topic := strings.TrimSpace(args); topic != "" {
		return topic
	}
	return "latest news"
}

func handleNews(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error {
	reply, err := b.actions.News(ctx, msg.From.ID, newsTopic(args))
	if err != nil {
		return err
	}
	b.sendText(msg.Chat.ID, reply)
	return nil
}

func handleSummarize(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error {
	reply, err := b.actions.Summarize(ctx, msg.From.ID, args)
	if err != nil {
		return err
	}
	b.sendText(msg.Chat.ID, reply)
	return nil
}

func handleMyQuota(ctx context.Context, b *Bot, msg *tgbotapi.Message, _ string) error {
	user, err := b.users.FindByTelegramID(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	if user == nil {
		b.sendText(msg.Chat.ID, "You haven't redeemed an access code yet. Send /redeem ET-XXXX-XXXX.")
		return nil
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf("Your balance:\nAI credits: %d\nWeb fetches: %d", user.QuotaGPT, user.QuotaFetch))
	return nil
}

func handleCourses(ctx context.Context, b *Bot, msg *tgbotapi.Message, _ string) error {
	var sb strings.Builder
	sb.WriteString("Free courses (included with your access code):\n\n")
	for _, c := range b.courses.Catalog().Free() {
		fmt.Fprintf(&sb, "%s - %s\n%s\nDuration: %s\n\n", c.ID, c.Title, c.Subtitle, c.Duration)
	}
	sb.WriteString("Enroll with /enroll <course>, e.g. /enroll fundamentals\n\n")
	sb.WriteString("Premium: AI Training Bootcamp - see /bootcamp")
	b.sendText(msg.Chat.ID, sb.String())
	return nil
}

func handleBootcamp(ctx context.Context, b *Bot, msg *tgbotapi.Message, _ string) error {
	c := b.courses.Catalog().Get("bootcamp")
	if c == nil {
		b.sendText(msg.Chat.ID, "The bootcamp is not open for enrollment right now.")
		return nil
	}
	text := fmt.Sprintf(
		"%s\n\n%s\n\nDuration: %s\nInvestment: $%d (one-time)\n\n"+
			"Includes two 1-on-1 mentoring sessions, a capstone project and a professional certificate (AFCP).\n\n"+
			"Enroll at %s/bootcamp\n\n"+
			"Not sure yet? Start with the free courses: /enroll fundamentals",
		c.Title, c.Description, c.Duration, c.PriceCents/100, b.cfg.Domain)
	b.sendText(msg.Chat.ID, text)
	return nil
}

func handleEnroll(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error {
	courseID := strings.ToLower(strings.TrimSpace(args))
	c, err := b.courses.Enroll(ctx, msg.From.ID, courseID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Enrolled in %s!\n\n%s\n\nDuration: %s\n\nFirst lessons:\n", c.Title, c.Description, c.Duration)
	for i, m := range c.Modules {
		if i >= 4 {
			fmt.Fprintf(&sb, "... and %d more\n", len(c.Modules)-4)
			break
		}
		fmt.Fprintf(&sb, "- Lesson %s: %s\n", m.ID, m.Title)
	}
	sb.WriteString("\nStart with /lesson " + c.Modules[0].ID)
	b.sendText(msg.Chat.ID, sb.String())
	return nil
}

func handleLesson(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error {
	c, m, err := b.courses.Lesson(strings.TrimSpace(args))
	if err != nil {
		return err
	}
	text := fmt.Sprintf(
		"Lesson %s: %s\nCourse: %s\n\n%s\n\nDone reading? Mark it: /complete %s %s",
		m.ID, m.Title, c.Title, m.Content, m.ID, c.ID)
	b.sendText(msg.Chat.ID, text)
	return nil
}

func handleComplete(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		b.sendText(msg.Chat.ID, "Usage: /complete <lesson> <course>\nExample: /complete 1.1 fundamentals")
		return nil
	}
	progress, err := b.courses.CompleteModule(ctx, msg.From.ID, strings.ToLower(parts[1]), parts[0])
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Lesson %s done. Progress in %s: %d/%d lessons (%d%%).",
		parts[0], progress.Course.Title, len(progress.CompletedModules), progress.TotalModules, progress.Percent())
	if progress.Percent() >= 80 && progress.QuizScore == nil {
		text += "\n\nYou're close! Submit your final quiz score with /score <0-100> " + progress.Course.ID
	}
	b.sendText(msg.Chat.ID, text)
	return nil
}

func handleQuiz(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error {
	topic, err := b.quizTopic(args)
	if err != nil {
		return err
	}
	reply, err := b.actions.Quiz(ctx, msg.From.ID, topic, "one practice question")
	if err != nil {
		return err
	}
	b.sendText(msg.Chat.ID, reply)
	return nil
}

// quizTopic resolves the optional /quiz argument: a course id quizzes the
// whole course, a lesson number quizzes that lesson, and no argument gives a
// general question.
func (b *Bot) quizTopic(args string) (string, error) {
	arg := strings.TrimSpace(args)
	if arg == "" {
		return "practical AI literacy: what AI can do, its limits, and how to use it safely", nil
	}
	if c := b.courses.Catalog().Get(strings.ToLower(arg)); c != nil {
		titles := make([]string, 0, len(c.Modules))
		for _, m := range c.Modules {
			titles = append(titles, m.Title)
		}
		return c.Title + " (covering: " + strings.Join(titles, "; ") + ")", nil
	}
	_, m, err := b.courses.Lesson(arg)
	if err != nil {
		return "", err
	}
	return m.Title + ": " + m.Content, nil
}

// parseScoreArgs reads the documented "/score 85 fundamentals" form: the
// score comes first, then the course.
func parseScoreArgs(args string) (score int, courseID string, ok bool) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return 0, "", false
	}
	score, err := strconv.Atoi(parts[0])
	if err != nil || score < 0 || score > 100 {
		return 0, "", false
	}
	return score, strings.ToLower(parts[1]), true
}

func handleScore(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error {
	score, courseID, ok := parseScoreArgs(args)
	if !ok {
		b.sendText(msg.Chat.ID, "Usage: /score <0-100> <course>\nExample: /score 85 fundamentals")
		return nil
	}

	if err := b.courses.RecordQuizScore(ctx, msg.From.ID, courseID, score); err != nil {
		return err
	}

	cert, err := b.certs.Issue(ctx, msg.From.ID, courseID)
	if err != nil {
		if text := b.userMessage(err); text != "" {
			b.sendText(msg.Chat.ID, fmt.Sprintf("Score %d recorded. %s", score, text))
			return nil
		}
		return err
	}

	text := fmt.Sprintf(
		"Congratulations! Course complete.\n\nCertificate ID: %s\nFinal score: %d\n\nAnyone can verify it with /verify %s",
		cert.CertificateID, cert.Score, cert.CertificateID)
	if cert.DocumentURL != "" {
		text += "\nDocument: " + cert.DocumentURL
	}
	b.sendText(msg.Chat.ID, text)
	return nil
}

func handleProgress(ctx context.Context, b *Bot, msg *tgbotapi.Message, _ string) error {
	progress, err := b.courses.UserProgress(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	if len(progress) == 0 {
		b.sendText(msg.Chat.ID, "You're not enrolled in any course yet. Browse with /courses.")
		return nil
	}
	var sb strings.Builder
	sb.WriteString("Your courses:\n\n")
	for _, p := range progress {
		fmt.Fprintf(&sb, "%s: %d/%d lessons (%d%%)", p.Course.Title, len(p.CompletedModules), p.TotalModules, p.Percent())
		if p.QuizScore != nil {
			fmt.Fprintf(&sb, ", quiz %d", *p.QuizScore)
		}
		if p.Completed {
			sb.WriteString(" - completed")
		}
		sb.WriteString("\n")
	}
	b.sendText(msg.Chat.ID, sb.String())
	return nil
}

func handleCertificates(ctx context.Context, b *Bot, msg *tgbotapi.Message, _ string) error {
	certs, err := b.certs.UserCertificates(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	if len(certs) == 0 {
		b.sendText(msg.Chat.ID, "No certificates yet. Finish a course and submit your quiz score to earn one.")
		return nil
	}
	var sb strings.Builder
	sb.WriteString("Your certificates:\n\n")
	for _, c := range certs {
		title := c.CourseID
		if course := b.courses.Catalog().Get(c.CourseID); course != nil {
			title = course.Title
		}
		fmt.Fprintf(&sb, "%s\n%s (score %d, issued %s)\n", c.CertificateID, title, c.Score, c.IssuedAt.Format("2006-01-02"))
		if c.DocumentURL != "" {
			sb.WriteString(c.DocumentURL + "\n")
		}
		sb.WriteString("\n")
	}
	b.sendText(msg.Chat.ID, sb.String())
	return nil
}

func handleVerify(ctx context.Context, b *Bot, msg *tgbotapi.Message, args string) error {
	cert, course, err := b.certs.Verify(ctx, strings.ToUpper(strings.TrimSpace(args)))
	if err != nil {
		return err
	}
	if cert == nil {
		b.sendText(msg.Chat.ID, "No certificate with that id was found.")
		return nil
	}
	title := cert.CourseID
	if course != nil {
		title = course.Title
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf(
		"Valid certificate.\n\nID: %s\nCourse: %s\nScore: %d\nIssued: %s",
		cert.CertificateID, title, cert.Score, cert.IssuedAt.Format("2006-01-02")))
	return nil
}
