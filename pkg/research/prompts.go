package research

import (
	"fmt"
	"strings"
	"time"
)

// systemPrompt is shared by every call. It is rebuilt per call so the date stays current.
func systemPrompt() string {
	return fmt.Sprintf(`You are an expert researcher. Today is %s. Follow these instructions when responding:
- You may be asked to research subjects that are after your knowledge cutoff; assume the user is right when presented with news.
- The user is a highly experienced analyst, no need to simplify it, be as detailed as possible and make sure your response is correct.
- Be highly organized.
- Suggest solutions that the user did not think about.
- Be proactive and anticipate the user's needs.
- Treat the user as an expert in all subject matter.
- Mistakes erode trust, so be accurate and thorough.
- Value good arguments over authorities, the source is irrelevant.
- Consider new technologies and contrarian ideas, not just the conventional wisdom.
- You may use high levels of speculation or prediction, just flag it for the user.
- Always answer with a single JSON object when a response format is given.`, time.Now().UTC().Format(time.DateOnly))
}

func buildPlanPrompt(goal Goal, n int, prior []Learning) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Given the following prompt from the user, generate a list of SERP queries to research the topic. "+
		"Return a JSON object with a 'queries' array containing at most %d queries (or fewer if the original prompt is clear). "+
		"Each query object has a 'query' and a 'research_goal' field. Make sure each query is unique and not similar to the others.\n\n", n)
	fmt.Fprintf(&sb, "<prompt>%s</prompt>\n", goal.Text)

	if len(goal.OpenQuestions) > 0 {
		sb.WriteString("\nContext carried over from earlier research:\n")
		for _, q := range goal.OpenQuestions {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
	}
	if len(prior) > 0 {
		sb.WriteString("\nHere are some learnings from previous research, use them to generate more specific queries:\n")
		for _, l := range prior {
			fmt.Fprintf(&sb, "- %s\n", l.Text)
		}
	}
	return sb.String()
}

func buildExtractPrompt(q SerpQuery, contents []string, n int, openQuestions []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Given the following contents from a SERP search for the query <query>%s</query>, "+
		"generate a list of learnings from the contents. Return a JSON object with 'learnings' and 'follow_up_questions' arrays. "+
		"Include up to %d learnings and %d follow-up questions. The learnings should be unique, concise and information dense: "+
		"include entities, metrics, numbers and dates, and never restate the query itself. "+
		"Follow-up questions must open genuinely new directions.\n\n", q.Query, n, n)
	if q.ResearchGoal != "" {
		fmt.Fprintf(&sb, "<research_goal>%s</research_goal>\n\n", q.ResearchGoal)
	}
	if len(openQuestions) > 0 {
		sb.WriteString("Questions already being pursued (do not repeat them):\n")
		for _, oq := range openQuestions {
			fmt.Fprintf(&sb, "- %s\n", oq)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("<contents>")
	for _, c := range contents {
		fmt.Fprintf(&sb, "<content>\n%s\n</content>", c)
	}
	sb.WriteString("</contents>")
	return sb.String()
}

func buildReportPrompt(goal Goal, learningsBlock string) string {
	var sb strings.Builder
	sb.WriteString("Given the following prompt from the user, write a final report on the topic using the learnings from research. " +
		"Return a JSON object with a 'report_markdown' field containing a detailed markdown report (aim for 3 or more pages). " +
		"Organize it into sections that synthesize the learnings. Include ALL the learnings from research. " +
		"Do not add a sources or references section and do not cite URLs; sources are appended separately.\n\n")
	fmt.Fprintf(&sb, "<prompt>%s</prompt>\n\n", goal.Text)
	if len(goal.OpenQuestions) > 0 {
		sb.WriteString("<context>\n")
		for _, q := range goal.OpenQuestions {
			fmt.Fprintf(&sb, "%s\n", q)
		}
		sb.WriteString("</context>\n\n")
	}
	fmt.Fprintf(&sb, "Here are all the learnings from research:\n\n<learnings>\n%s\n</learnings>", learningsBlock)
	return sb.String()
}

func buildClarifyPrompt(topic string, n int) string {
	return fmt.Sprintf("Given this research topic: %s, generate up to %d follow-up questions to better understand the user's research needs. "+
		"Return a JSON object with a 'questions' array field.", topic, n)
}
