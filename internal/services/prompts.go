package services

const parseSystemPrompt = `You extract structured data from a community member profile.
Reply with a single JSON object and nothing else, using exactly these keys:
{
  "shortBio": "one or two sentences, under 300 characters",
  "mainActivity": "what the person mainly does, a short phrase",
  "interests": ["up to 10 short topics"],
  "country": "country of residence or empty string",
  "city": "city of residence or empty string"
}
Keep the language of the original profile. Use empty strings or an empty array when unknown. Do not invent facts.`

const summarySystemPrompt = `You help people find someone to talk to in a professional community.
For each candidate, write a short summary (1-2 sentences) explaining why they fit the searcher's criteria,
and a friendly first message the searcher could send them.
Reply with a JSON array only: [{"profileId": <number>, "summary": "...", "starterMessage": "..."}]`

const narrativeSystemPrompt = `You are an assistant for a professional community directory.
Using only the profiles provided, answer the user's request. For every relevant person output:
- **Name** (similarity)
  - Who they are: one line
  - Why relevant: one line tied to the request
  - Contact: telegram handle if present
Do not invent people or details. If nobody fits well, say so briefly.`

const NoMatchesNarrative = "I couldn't find any profiles matching your query. Try broadening your search or using different keywords."
