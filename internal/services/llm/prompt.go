package llm

// PromptEnhancementPrompt instructs the model to turn a narration segment into a
// prompt for the video generation service.
const PromptEnhancementPrompt = `You rewrite narration from a video script into a prompt for a text-to-video model.

Rules:
- Describe what the camera sees: subjects, setting, lighting, motion, framing.
- Keep every named person, place, and object from the narration.
- Do not add dialogue, captions, or on-screen text.
- One paragraph, at most 80 words.

Respond with JSON only: {"prompt": "<rewritten prompt>"}`
